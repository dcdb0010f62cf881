// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package daqstream

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Defaults for a new Session.
const (
	DefaultUpdateRate     = 10.0 // Hz
	DefaultSendCap        = 10000
	DefaultSamplesPerRead = 200
	DefaultBufferSize     = 20000
	DefaultReadTimeout    = time.Second
)

// Limits on what a session may be set to.
const (
	MinUpdateRate     = 0.01 // Hz
	MaxUpdateRate     = 1000 // Hz
	MaxSendCap        = math.MaxInt32
	MaxSamplesPerRead = 1 << 20
)

// Config is a snapshot of a session's settings.
type Config struct {
	UpdateRate     float64       `json:"update_rate"`
	SendCap        int           `json:"send_cap"`
	SamplesPerRead int           `json:"samples_per_read"`
	BufferSize     int           `json:"buffer_size"`
	ReadTimeout    time.Duration `json:"read_timeout"`
}

// config holds the settings both loops read on every cycle.
// Each field is read and written atomically, so a change is picked up on the next cycle.
type config struct {
	updateRate     atomic.Uint64 // math.Float64bits of the rate in Hz
	sendCap        atomic.Int64
	samplesPerRead atomic.Int64
	readTimeout    atomic.Int64 // nanoseconds
	bufferSize     int          // Fixed when the session is made
}

func (c *config) interval() time.Duration {
	return time.Duration(float64(time.Second) / c.rate())
}

func (c *config) rate() float64 {
	return math.Float64frombits(c.updateRate.Load())
}

func (c *config) snapshot() Config {
	return Config{
		UpdateRate:     c.rate(),
		SendCap:        int(c.sendCap.Load()),
		SamplesPerRead: int(c.samplesPerRead.Load()),
		BufferSize:     c.bufferSize,
		ReadTimeout:    time.Duration(c.readTimeout.Load()),
	}
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}

func validUpdateRate(hz float64) error {
	if math.IsNaN(hz) || hz < MinUpdateRate || hz > MaxUpdateRate {
		return errors.Wrapf(ErrInvalidUpdateRate, "%v", hz)
	}
	return nil
}

// An Option configures a Session.
type Option func(*Session) error

// WithLogger sets the logger a session reports to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Session) error {
		if log == nil {
			return errors.New("logger cannot be nil")
		}
		s.baseLog = log
		return nil
	}
}

// WithID overrides the random session ID.
func WithID(id string) Option {
	return func(s *Session) error {
		if id == "" {
			return errors.New("session ID cannot be empty")
		}
		s.ID = id
		return nil
	}
}

// WithUpdateRate sets how many times per second each loop runs.
func WithUpdateRate(hz float64) Option {
	return func(s *Session) error {
		return s.SetUpdateRate(hz)
	}
}

// WithSendCap sets the maximum number of samples sent per channel in one frame.
func WithSendCap(n int) Option {
	return func(s *Session) error {
		return s.SetSendCap(n)
	}
}

// WithSamplesPerRead sets how many samples per channel are read from the source each cycle.
func WithSamplesPerRead(n int) Option {
	return func(s *Session) error {
		return s.SetSamplesPerRead(n)
	}
}

// WithBufferSize sets how many samples per channel the session's buffer keeps.
func WithBufferSize(n int) Option {
	return func(s *Session) error {
		if n < 1 {
			return errors.Errorf("invalid buffer size %d", n)
		}
		s.cfg.bufferSize = n
		return nil
	}
}

// WithReadTimeout bounds each read from the source.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return errors.Errorf("invalid read timeout %s", d)
		}
		s.cfg.readTimeout.Store(int64(d))
		return nil
	}
}
