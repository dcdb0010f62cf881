// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package daqstream streams samples from a source to a sink.
//
// A Session runs two loops while it is active.
// The acquisition loop reads blocks of samples from the source into a ring buffer,
// and the transmission loop sends each channel's samples which haven't been sent yet
// to the sink as one binary frame per cycle.
// Both loops run at the session's update rate, and only share the buffer.
package daqstream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/n0ot/daqstreamd/pkg/buffer"
	"github.com/n0ot/daqstreamd/pkg/source"
)

const errorsBuffSize = 16 // Transport errors kept for the controller

// State is the lifecycle state of a Session.
type State int32

// Session states.
const (
	Stopped State = iota
	Starting
	Active
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// Session streams one source to one sink.
type Session struct {
	ID string

	src     source.SampleSource
	sink    Sink
	buf     *buffer.ChannelBuffer
	cfg     config
	stats   counters
	baseLog logrus.FieldLogger
	log     *logrus.Entry

	errsMTX sync.Mutex // Serializes reportError
	errs    chan error

	readFailureLog rate.Sometimes
	sendFailureLog rate.Sometimes
	perfLog        rate.Sometimes

	state atomic.Int32

	runMTX sync.Mutex // Serializes Start and Stop, and protects cancel
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession makes a stopped session which reads from src, and sends frames to sink.
func NewSession(src source.SampleSource, sink Sink, opts ...Option) (*Session, error) {
	if src == nil {
		return nil, errors.New("no sample source given")
	}
	if sink == nil {
		return nil, errors.New("no sink given")
	}

	s := &Session{
		ID:             uuid.New().String(),
		src:            src,
		sink:           sink,
		baseLog:        logrus.StandardLogger(),
		errs:           make(chan error, errorsBuffSize),
		readFailureLog: rate.Sometimes{Interval: 5 * time.Second},
		sendFailureLog: rate.Sometimes{Interval: 5 * time.Second},
		perfLog:        rate.Sometimes{Interval: 5 * time.Second},
	}
	s.cfg.updateRate.Store(floatBits(DefaultUpdateRate))
	s.cfg.sendCap.Store(DefaultSendCap)
	s.cfg.samplesPerRead.Store(DefaultSamplesPerRead)
	s.cfg.readTimeout.Store(int64(DefaultReadTimeout))
	s.cfg.bufferSize = DefaultBufferSize

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "apply session option")
		}
	}

	s.log = s.baseLog.WithField("session_id", s.ID)
	s.buf = buffer.New(s.cfg.bufferSize)
	if src.Initialized() {
		for _, name := range src.Channels() {
			s.buf.AddChannel(name)
		}
	}
	return s, nil
}

// State returns the session's current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Buffer returns the session's channel buffer.
func (s *Session) Buffer() *buffer.ChannelBuffer {
	return s.buf
}

// Channels returns the names of the source's channels.
func (s *Session) Channels() []string {
	return s.src.Channels()
}

// Config returns the session's current settings.
func (s *Session) Config() Config {
	return s.cfg.snapshot()
}

// Errors receives transport errors from the transmission loop.
// If nobody reads them, only the most recent are kept.
func (s *Session) Errors() <-chan error {
	return s.errs
}

// Start clears the buffer, starts the source, and starts streaming.
// Starting an active session restarts it from an empty buffer.
func (s *Session) Start() error {
	s.runMTX.Lock()
	defer s.runMTX.Unlock()

	if !s.src.Initialized() {
		return ErrSourceNotInitialized
	}
	if s.State() == Active {
		if err := s.stop(); err != nil {
			s.log.WithFields(logrus.Fields{
				"error": err,
			}).Warn("Error stopping session before restart")
		}
	}

	s.setState(Starting)
	s.buf.Clear()
	names := s.src.Channels()
	for _, name := range names {
		s.buf.AddChannel(name)
	}
	if err := s.src.Start(); err != nil {
		s.setState(Stopped)
		return errors.Wrap(err, "Start source")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stats.reset(time.Now())
	cursors := make(map[string]uint64, len(names))

	s.setState(Active)
	s.wg.Add(2)
	go s.acquire(ctx, names)
	go s.transmit(ctx, cursors)

	s.log.WithFields(logrus.Fields{
		"channels": names,
		"config":   s.cfg.snapshot(),
	}).Info("Streaming started")
	return nil
}

// Stop stops streaming, and waits for both loops to return before stopping the source.
// Once Stop returns, the buffer won't change and nothing more is sent.
// Stopping a stopped session does nothing.
func (s *Session) Stop() error {
	s.runMTX.Lock()
	defer s.runMTX.Unlock()
	return s.stop()
}

func (s *Session) stop() error {
	if s.State() == Stopped {
		return nil
	}

	s.setState(Stopping)
	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	err := s.src.Stop()
	s.setState(Stopped)
	s.log.Info("Streaming stopped")
	if err != nil {
		return errors.Wrap(err, "Stop source")
	}
	return nil
}

// SetUpdateRate changes how often both loops run. It applies from each loop's next cycle.
func (s *Session) SetUpdateRate(hz float64) error {
	if err := validUpdateRate(hz); err != nil {
		return err
	}
	s.cfg.updateRate.Store(floatBits(hz))
	return nil
}

// SetSendCap changes the maximum number of samples sent per channel in one frame.
func (s *Session) SetSendCap(n int) error {
	if n < 1 || n > MaxSendCap {
		return errors.Wrapf(ErrInvalidSendCap, "%d", n)
	}
	s.cfg.sendCap.Store(int64(n))
	return nil
}

// SetSamplesPerRead changes how many samples per channel are read from the source each cycle.
func (s *Session) SetSamplesPerRead(n int) error {
	if n < 1 || n > MaxSamplesPerRead {
		return errors.Wrapf(ErrInvalidSamplesPerRead, "%d", n)
	}
	s.cfg.samplesPerRead.Store(int64(n))
	return nil
}

// TimingStats returns the session's counters.
func (s *Session) TimingStats() TimingStats {
	st := s.stats.snapshot()
	st.State = s.State().String()
	st.Config = s.cfg.snapshot()
	st.BufferLength = s.buf.GetLength()
	if s.State() == Active && !st.StartedAt.IsZero() {
		st.Uptime = time.Since(st.StartedAt)
	}
	return st
}

// reportError hands err to the controller without blocking.
// If the channel is full, the oldest error is dropped to make room.
func (s *Session) reportError(err error) {
	s.errsMTX.Lock()
	defer s.errsMTX.Unlock()

	select {
	case s.errs <- err:
		return
	default:
	}

	select {
	case old := <-s.errs:
		s.log.WithFields(logrus.Fields{
			"error": old,
		}).Debug("Dropped transport error")
	default:
	}

	select {
	case s.errs <- err:
	default:
	}
}

// sleep waits for d, returning false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
