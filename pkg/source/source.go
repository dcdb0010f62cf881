// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package source defines where samples come from.
package source

import "context"

// A SampleSource produces blocks of samples for a fixed, ordered set of channels.
//
// ReadData blocks until n samples per channel have been written into block,
// where block[i][:n] receives the samples for Channels()[i].
// An error from ReadData is transient; the caller may try again on its next cycle.
// ReadData must return once ctx is done.
type SampleSource interface {
	Initialized() bool
	Start() error
	Stop() error
	ReadData(ctx context.Context, block [][]float64, n int) error
	Channels() []string
}

// A Factory opens a new SampleSource, one per streaming session.
type Factory func() (SampleSource, error)
