// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package daqstream

import "github.com/pkg/errors"

// Errors returned by a Session.
var (
	// ErrSourceNotInitialized is returned by Start when the sample source hasn't been opened.
	ErrSourceNotInitialized = errors.New("sample source not initialized")

	ErrInvalidUpdateRate     = errors.New("update rate must be between 0.01 and 1000 Hz")
	ErrInvalidSendCap        = errors.New("send cap must be between 1 and 2147483647")
	ErrInvalidSamplesPerRead = errors.New("samples per read must be between 1 and 1048576")
)
