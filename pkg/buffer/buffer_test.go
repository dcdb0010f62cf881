package buffer

import (
	"reflect"
	"sync"
	"testing"
)

func TestAddDataEvictsOldest(t *testing.T) {
	b := New(5)
	b.AddData(map[string][]float64{"x": {1, 2, 3}})
	b.AddData(map[string][]float64{"x": {4, 5, 6}})

	got := b.GetData()["x"]
	want := []float64{2, 3, 4, 5, 6}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wanted %v, got %v", want, got)
	}
}

func TestRingKeepsMostRecent(t *testing.T) {
	for _, capacity := range []int{1, 2, 3, 7, 16} {
		b := New(capacity)
		var appended []float64
		next := 0.0
		// Mix block sizes smaller than, equal to, and larger than the capacity.
		for _, size := range []int{1, 3, capacity, 2, capacity + 4, 5, 1} {
			block := make([]float64, size)
			for i := range block {
				next++
				block[i] = next
			}
			appended = append(appended, block...)
			b.AddData(map[string][]float64{"ch": block})
		}

		got := b.GetData()["ch"]
		want := appended[len(appended)-capacity:]
		if !reflect.DeepEqual(got, want) {
			t.Errorf("capacity %d: wanted %v, got %v", capacity, want, got)
		}
		if n := b.GetLength(); n != capacity {
			t.Errorf("capacity %d: GetLength() = %d", capacity, n)
		}
	}
}

func TestAddDataEmptyIsNoop(t *testing.T) {
	b := New(4)
	b.AddData(nil)
	b.AddData(map[string][]float64{})
	if len(b.Channels()) != 0 {
		t.Errorf("Expected no channels, got %v", b.Channels())
	}
	if b.SampleCount() != 0 {
		t.Errorf("Expected sample count 0, got %d", b.SampleCount())
	}
}

func TestAddChannelIsIdempotent(t *testing.T) {
	b := New(4)
	b.AddChannel("a")
	b.AddData(map[string][]float64{"a": {1, 2}})
	b.AddChannel("a")

	if got := b.Window("a", 0); !reflect.DeepEqual(got, []float64{1, 2}) {
		t.Errorf("AddChannel on an existing channel changed its data: %v", got)
	}
	if got := b.Channels(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Wanted one channel, got %v", got)
	}
}

func TestUnknownChannelsAreAdded(t *testing.T) {
	b := New(4)
	b.AddChannel("b")
	b.AddData(map[string][]float64{"c": {1}, "a": {2}, "b": {3}})

	want := []string{"b", "a", "c"}
	if got := b.Channels(); !reflect.DeepEqual(got, want) {
		t.Errorf("Wanted channel order %v, got %v", want, got)
	}
}

func TestAddBlockKeepsOrder(t *testing.T) {
	b := New(3)
	names := []string{"ai1", "ai0"}
	b.AddBlock(names, [][]float64{{1, 2}, {3, 4}})
	b.AddBlock(names, [][]float64{{5, 6}, {7, 8}})

	snap := b.Snapshot()
	want := []ChannelSnapshot{
		{Name: "ai1", Samples: []float64{2, 5, 6}, Total: 4},
		{Name: "ai0", Samples: []float64{4, 7, 8}, Total: 4},
	}
	if !reflect.DeepEqual(snap, want) {
		t.Errorf("Wanted %+v, got %+v", want, snap)
	}
	if b.SampleCount() != 4 {
		t.Errorf("Wanted sample count 4, got %d", b.SampleCount())
	}
}

func TestWindowMaxPoints(t *testing.T) {
	b := New(10)
	b.AddData(map[string][]float64{"x": {1, 2, 3, 4, 5}})

	tests := []struct {
		max  int
		want []float64
	}{
		{0, []float64{1, 2, 3, 4, 5}},
		{-1, []float64{1, 2, 3, 4, 5}},
		{2, []float64{4, 5}},
		{5, []float64{1, 2, 3, 4, 5}},
		{50, []float64{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		if got := b.Window("x", tt.max); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Window(x, %d) = %v, wanted %v", tt.max, got, tt.want)
		}
	}
	if got := b.Window("missing", 0); got != nil {
		t.Errorf("Wanted nil for an unknown channel, got %v", got)
	}
}

func TestClearKeepsChannels(t *testing.T) {
	b := New(3)
	b.AddData(map[string][]float64{"x": {1, 2, 3, 4}, "y": {5, 6, 7, 8}})
	b.Clear()

	data := b.GetData()
	if len(data) != 2 {
		t.Fatalf("Wanted 2 channels after Clear, got %d", len(data))
	}
	for name, samples := range data {
		if len(samples) != 0 {
			t.Errorf("Channel %s not empty after Clear: %v", name, samples)
		}
	}
	for _, s := range b.Snapshot() {
		if s.Total != 0 {
			t.Errorf("Channel %s total not reset: %d", s.Name, s.Total)
		}
	}
	if b.SampleCount() != 0 || b.GetLength() != 0 {
		t.Errorf("Counters not reset: sample count %d, length %d", b.SampleCount(), b.GetLength())
	}

	b.AddData(map[string][]float64{"x": {9}})
	if got := b.Window("x", 0); !reflect.DeepEqual(got, []float64{9}) {
		t.Errorf("Wanted [9] after Clear and add, got %v", got)
	}
}

func TestGetLengthWithoutChannels(t *testing.T) {
	if n := New(2).GetLength(); n != 0 {
		t.Errorf("Wanted 0, got %d", n)
	}
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected New(0) to panic")
		}
	}()
	New(0)
}

// Every snapshot taken while blocks are written must show whole blocks only.
func TestSnapshotsAreConsistent(t *testing.T) {
	const blockSize = 4
	b := New(64)
	names := []string{"a", "b"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			block := [][]float64{make([]float64, blockSize), make([]float64, blockSize)}
			for j := 0; j < blockSize; j++ {
				block[0][j] = float64(i)
				block[1][j] = float64(i)
			}
			b.AddBlock(names, block)
		}
	}()

	for i := 0; i < 500; i++ {
		snap := b.Snapshot()
		if len(snap) == 2 && snap[0].Total != snap[1].Total {
			t.Fatalf("Channels out of step: %d vs %d", snap[0].Total, snap[1].Total)
		}
		for _, ch := range snap {
			if ch.Total%blockSize != 0 {
				t.Fatalf("Partial block visible in %s: total %d", ch.Name, ch.Total)
			}
		}
	}
	wg.Wait()
}
