// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package daqstream

import "context"

// A Sink delivers encoded frames to a consumer.
// Frames must be delivered in the order Send is called, without being merged.
// Send owns frame after it is called.
// An error means the consumer is gone or the transport failed.
type Sink interface {
	Send(ctx context.Context, frame []byte) error
}

// SinkFunc is an adapter to use an ordinary function as a Sink.
type SinkFunc func(ctx context.Context, frame []byte) error

// Send calls f(ctx, frame).
func (f SinkFunc) Send(ctx context.Context, frame []byte) error {
	return f(ctx, frame)
}
