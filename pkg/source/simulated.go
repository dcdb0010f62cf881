// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package source

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Errors returned by Simulated.
var (
	ErrNotInitialized = errors.New("source not initialized")
	ErrNotRunning     = errors.New("source not running")
)

// Simulated generates noisy sine waves, one frequency per channel.
// Channels past the end of Frequencies carry noise only.
type Simulated struct {
	// Frequencies in Hz, indexed by channel.
	Frequencies []float64

	// Phases in radians, indexed by channel.
	Phases []float64

	// Noise is the standard deviation of the gaussian noise added to every sample.
	Noise float64

	// Paced makes ReadData wait until the wall clock has caught up with the samples it returns,
	// the way a hardware read waits for the device.
	Paced bool

	// Seed seeds the noise generator. If 0, the current time is used.
	Seed int64

	Log logrus.FieldLogger

	mu          sync.Mutex // Protects everything below
	channels    []string
	sampleRate  float64
	rng         *rand.Rand
	timeOffset  float64 // Seconds of signal generated since Initialize
	startedAt   time.Time
	startOffset float64
	initialized bool
	running     bool
}

// NewSimulated makes a Simulated source with four default waves of 1, 2, 5 and 10 Hz.
func NewSimulated(log logrus.FieldLogger) *Simulated {
	return &Simulated{
		Frequencies: []float64{1, 2, 5, 10},
		Phases:      []float64{0, math.Pi / 4, math.Pi / 2, 3 * math.Pi / 4},
		Noise:       0.1,
		Log:         log,
	}
}

// Initialize sets the channels and sample rate, and resets the signal to time 0.
func (s *Simulated) Initialize(channels []string, sampleRate float64) error {
	if len(channels) == 0 {
		return errors.New("at least one channel is required")
	}
	if sampleRate <= 0 || math.IsInf(sampleRate, 0) || math.IsNaN(sampleRate) {
		return errors.Errorf("invalid sample rate %v", sampleRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append([]string(nil), channels...)
	s.sampleRate = sampleRate
	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s.rng = rand.New(rand.NewSource(seed))
	s.timeOffset = 0
	s.initialized = true
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"channels":    channels,
			"sample_rate": sampleRate,
		}).Info("Simulated source initialized")
	}
	return nil
}

// Initialized reports whether Initialize has been called since the last Close.
func (s *Simulated) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Channels returns the channel names given to Initialize.
func (s *Simulated) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.channels...)
}

// SampleRate returns the sample rate given to Initialize.
func (s *Simulated) SampleRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

// Start starts producing samples.
func (s *Simulated) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.running = true
	s.startedAt = time.Now()
	s.startOffset = s.timeOffset
	return nil
}

// Stop stops producing samples. Stopping a stopped source does nothing.
func (s *Simulated) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Close stops the source and forgets its configuration.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.initialized = false
	return nil
}

// ReadData fills block[i][:n] with the next n samples of channel i.
func (s *Simulated) ReadData(ctx context.Context, block [][]float64, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n <= 0 {
		return errors.Errorf("invalid sample count %d", n)
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if len(block) < len(s.channels) {
		s.mu.Unlock()
		return errors.Errorf("block has %d rows, need %d", len(block), len(s.channels))
	}
	var wait time.Duration
	if s.Paced {
		due := s.startedAt.Add(time.Duration((s.timeOffset - s.startOffset + float64(n)/s.sampleRate) * float64(time.Second)))
		wait = time.Until(due)
	}
	s.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}

	dt := 1 / s.sampleRate
	for i := range s.channels {
		row := block[i]
		if len(row) < n {
			return errors.Errorf("block row %d has %d columns, need %d", i, len(row), n)
		}
		for j := 0; j < n; j++ {
			var v float64
			if i < len(s.Frequencies) {
				var phase float64
				if i < len(s.Phases) {
					phase = s.Phases[i]
				}
				t := s.timeOffset + float64(j)*dt
				v = math.Sin(2*math.Pi*s.Frequencies[i]*t + phase)
			}
			if s.Noise > 0 {
				v += s.rng.NormFloat64() * s.Noise
			}
			row[j] = v
		}
	}
	s.timeOffset += float64(n) * dt
	return nil
}
