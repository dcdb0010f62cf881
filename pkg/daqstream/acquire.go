// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package daqstream

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// acquire reads a block from the source every cycle, and appends it to the buffer.
// A failed read skips the cycle. It returns once ctx is done.
func (s *Session) acquire(ctx context.Context, names []string) {
	defer s.wg.Done()
	log := s.log.WithField("loop", "acquisition")
	log.Debug("Acquisition started")
	defer log.Debug("Acquisition stopped")

	var block [][]float64
	for {
		n := int(s.cfg.samplesPerRead.Load())
		if len(names) > 0 {
			block = sizeBlock(block, len(names), n)
			s.readBlock(ctx, log, names, block, n)
		}
		if ctx.Err() != nil {
			return
		}
		if !sleep(ctx, s.cfg.interval()) {
			return
		}
	}
}

func (s *Session) readBlock(ctx context.Context, log *logrus.Entry, names []string, block [][]float64, n int) {
	readCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.readTimeout.Load()))
	defer cancel()

	start := time.Now()
	err := s.src.ReadData(readCtx, block, n)
	s.stats.observeRead(time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.readFailureLog.Do(func() {
			log.WithFields(logrus.Fields{
				"error":         err,
				"read_failures": s.stats.readFailures.Load(),
			}).Warn("Read from sample source failed")
		})
		return
	}

	// A stop which raced the read must not touch the buffer.
	if ctx.Err() != nil {
		return
	}
	s.buf.AddBlock(names, block)
}

// sizeBlock returns a channels × n block, reusing block when it already has that shape.
func sizeBlock(block [][]float64, channels, n int) [][]float64 {
	if len(block) == channels && len(block[0]) == n {
		return block
	}
	block = make([][]float64, channels)
	backing := make([]float64, channels*n)
	for i := range block {
		block[i] = backing[i*n : (i+1)*n : (i+1)*n]
	}
	return block
}
