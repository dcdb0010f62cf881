package source

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func newBlock(channels, n int) [][]float64 {
	block := make([][]float64, channels)
	for i := range block {
		block[i] = make([]float64, n)
	}
	return block
}

func TestSimulatedLifecycle(t *testing.T) {
	s := NewSimulated(nil)
	if s.Initialized() {
		t.Fatalf("New source should not be initialized")
	}
	if err := s.Start(); err != ErrNotInitialized {
		t.Errorf("Start before Initialize: wanted ErrNotInitialized, got %v", err)
	}
	if err := s.Initialize([]string{"ai0"}, 1000); err != nil {
		t.Fatalf("Initialize: %s", err)
	}
	if err := s.ReadData(context.Background(), newBlock(1, 10), 10); err != ErrNotRunning {
		t.Errorf("Read before Start: wanted ErrNotRunning, got %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %s", err)
	}
	if err := s.ReadData(context.Background(), newBlock(1, 10), 10); err != nil {
		t.Errorf("Read: %s", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop: %s", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Second Stop: %s", err)
	}
	s.Close()
	if s.Initialized() {
		t.Errorf("Source still initialized after Close")
	}
}

func TestSimulatedInitializeValidates(t *testing.T) {
	s := NewSimulated(nil)
	if err := s.Initialize(nil, 1000); err == nil {
		t.Errorf("Expected an error for no channels")
	}
	for _, rate := range []float64{0, -1, math.Inf(1), math.NaN()} {
		if err := s.Initialize([]string{"a"}, rate); err == nil {
			t.Errorf("Expected an error for sample rate %v", rate)
		}
	}
}

// Without noise, consecutive reads must continue the same sine wave.
func TestSimulatedSignalIsContinuous(t *testing.T) {
	s := NewSimulated(nil)
	s.Noise = 0
	s.Frequencies = []float64{10}
	s.Phases = []float64{0}
	if err := s.Initialize([]string{"sine", "silent"}, 1000); err != nil {
		t.Fatalf("Initialize: %s", err)
	}
	s.Start()

	var got []float64
	for i := 0; i < 3; i++ {
		block := newBlock(2, 50)
		if err := s.ReadData(context.Background(), block, 50); err != nil {
			t.Fatalf("ReadData: %s", err)
		}
		got = append(got, block[0]...)
		for j, v := range block[1] {
			if v != 0 {
				t.Fatalf("Channel without a frequency should be silent, got %v at %d", v, j)
			}
		}
	}

	for j, v := range got {
		want := math.Sin(2 * math.Pi * 10 * float64(j) / 1000)
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("Sample %d: wanted %v, got %v", j, want, v)
		}
	}
}

func TestSimulatedNoiseIsSeeded(t *testing.T) {
	read := func() []float64 {
		s := NewSimulated(nil)
		s.Seed = 42
		s.Initialize([]string{"a"}, 100)
		s.Start()
		block := newBlock(1, 20)
		if err := s.ReadData(context.Background(), block, 20); err != nil {
			t.Fatalf("ReadData: %s", err)
		}
		return block[0]
	}
	a, b := read(), read()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Same seed produced different samples at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestSimulatedRejectsSmallBlocks(t *testing.T) {
	s := NewSimulated(nil)
	s.Initialize([]string{"a", "b"}, 100)
	s.Start()
	if err := s.ReadData(context.Background(), newBlock(1, 10), 10); err == nil {
		t.Errorf("Expected an error for too few rows")
	}
	if err := s.ReadData(context.Background(), newBlock(2, 5), 10); err == nil {
		t.Errorf("Expected an error for short rows")
	}
}

func TestSimulatedPacedReadHonorsContext(t *testing.T) {
	s := NewSimulated(nil)
	s.Paced = true
	s.Initialize([]string{"a"}, 1) // One sample per second
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.ReadData(ctx, newBlock(1, 10), 10)
	if errors.Cause(err) != context.DeadlineExceeded {
		t.Errorf("Wanted deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Paced read ignored its context for %s", elapsed)
	}
}
