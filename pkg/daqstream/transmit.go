// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package daqstream

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/n0ot/daqstreamd/pkg/buffer"
	"github.com/n0ot/daqstreamd/pkg/frame"
)

// delta counts what one transmission cycle did with the new samples it found.
type delta struct {
	sent    int
	capped  int // Dropped by the send cap
	overrun int // Evicted from the buffer before they were seen
}

// collect takes the samples in snap which come after each channel's cursor.
// At most sendCap of the newest samples are kept per channel.
// Every channel's cursor moves to the end of what was seen, whether or not it was capped,
// so nothing is ever sent twice or out of order.
func collect(snap []buffer.ChannelSnapshot, cursors map[string]uint64, sendCap int) ([]frame.Channel, delta) {
	var (
		chans []frame.Channel
		d     delta
	)
	for _, ch := range snap {
		cursor := cursors[ch.Name]
		if ch.Total < cursor {
			// The buffer was cleared under us; everything in it now is new.
			cursor = 0
		}
		if ch.Total == cursor {
			continue
		}

		newCount := ch.Total - cursor
		samples := ch.Samples
		if newCount > uint64(len(samples)) {
			d.overrun += int(newCount - uint64(len(samples)))
		} else {
			samples = samples[len(samples)-int(newCount):]
		}
		if len(samples) > sendCap {
			d.capped += len(samples) - sendCap
			samples = samples[len(samples)-sendCap:]
		}
		cursors[ch.Name] = ch.Total

		if len(samples) == 0 {
			continue
		}
		d.sent += len(samples)
		chans = append(chans, frame.Channel{Name: ch.Name, Samples: samples})
	}
	return chans, d
}

// transmit sends a frame of new samples to the sink every cycle. It returns once ctx is done.
func (s *Session) transmit(ctx context.Context, cursors map[string]uint64) {
	defer s.wg.Done()
	log := s.log.WithField("loop", "transmission")
	log.Debug("Transmission started")
	defer log.Debug("Transmission stopped")

	for {
		s.transmitOnce(ctx, log, cursors)
		if ctx.Err() != nil {
			return
		}
		if !sleep(ctx, s.cfg.interval()) {
			return
		}
	}
}

func (s *Session) transmitOnce(ctx context.Context, log *logrus.Entry, cursors map[string]uint64) {
	s.stats.transmissionCycles.Add(1)
	chans, d := collect(s.buf.Snapshot(), cursors, int(s.cfg.sendCap.Load()))
	s.stats.samplesCapped.Add(uint64(d.capped))
	s.stats.samplesOverrun.Add(uint64(d.overrun))
	if len(chans) == 0 {
		s.stats.emptyCycles.Add(1)
		return
	}

	encodeStart := time.Now()
	payload := frame.Encode(&frame.Frame{
		Timestamp: frame.Timestamp(encodeStart),
		Channels:  chans,
	})
	s.stats.lastEncode.Store(int64(time.Since(encodeStart)))

	sendStart := time.Now()
	err := s.sink.Send(ctx, payload)
	s.stats.lastSend.Store(int64(time.Since(sendStart)))
	if err != nil {
		// The cursors have already moved past these samples.
		s.stats.samplesLost.Add(uint64(d.sent))
		if ctx.Err() != nil {
			return
		}
		s.stats.sendFailures.Add(1)
		s.reportError(errors.Wrap(err, "send frame"))
		s.sendFailureLog.Do(func() {
			log.WithFields(logrus.Fields{
				"error":         err,
				"send_failures": s.stats.sendFailures.Load(),
			}).Warn("Sending frame failed")
		})
		return
	}

	s.stats.framesSent.Add(1)
	s.stats.bytesSent.Add(uint64(len(payload)))
	s.stats.samplesSent.Add(uint64(d.sent))
	s.perfLog.Do(func() {
		st := s.stats.snapshot()
		log.WithFields(logrus.Fields{
			"frames_sent":       st.FramesSent,
			"samples_sent":      st.SamplesSent,
			"bytes_sent":        st.BytesSent,
			"avg_read_duration": st.AvgReadDuration,
			"last_encode":       st.LastEncodeDuration,
			"last_send":         st.LastSendDuration,
			"buffer_length":     s.buf.GetLength(),
		}).Info("Streaming performance")
	})
}
