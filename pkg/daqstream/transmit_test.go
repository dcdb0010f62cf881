package daqstream

import (
	"context"
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/n0ot/daqstreamd/pkg/buffer"
	"github.com/n0ot/daqstreamd/pkg/frame"
)

func TestCollectCapsToNewest(t *testing.T) {
	buf := buffer.New(10)
	buf.AddData(map[string][]float64{"x": {10, 20, 30}})
	cursors := map[string]uint64{}

	chans, d := collect(buf.Snapshot(), cursors, 2)
	want := []frame.Channel{{Name: "x", Samples: []float64{20, 30}}}
	if !reflect.DeepEqual(chans, want) {
		t.Errorf("Wanted %v, got %v", want, chans)
	}
	if cursors["x"] != 3 {
		t.Errorf("Cursor should advance by 3, got %d", cursors["x"])
	}
	if d.sent != 2 || d.capped != 1 || d.overrun != 0 {
		t.Errorf("Wrong delta: %+v", d)
	}

	// The capped sample is gone for good.
	chans, _ = collect(buf.Snapshot(), cursors, 2)
	if len(chans) != 0 {
		t.Errorf("Nothing new was added, but got %v", chans)
	}
}

func TestCollectOnlyIncludesChannelsWithNewData(t *testing.T) {
	buf := buffer.New(10)
	buf.AddData(map[string][]float64{"a": {1, 2}, "b": {3, 4}})
	cursors := map[string]uint64{}
	collect(buf.Snapshot(), cursors, 100)

	buf.AddData(map[string][]float64{"b": {5}})
	chans, _ := collect(buf.Snapshot(), cursors, 100)
	want := []frame.Channel{{Name: "b", Samples: []float64{5}}}
	if !reflect.DeepEqual(chans, want) {
		t.Errorf("Wanted %v, got %v", want, chans)
	}

	payload := frame.Encode(&frame.Frame{Channels: chans})
	f, err := frame.Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	if len(f.Channels) != 1 {
		t.Errorf("Frame should carry 1 channel, got %d", len(f.Channels))
	}
}

func TestCollectCountsOverrun(t *testing.T) {
	buf := buffer.New(3)
	buf.AddData(map[string][]float64{"x": {1, 2, 3, 4, 5}})
	cursors := map[string]uint64{}

	chans, d := collect(buf.Snapshot(), cursors, 100)
	want := []frame.Channel{{Name: "x", Samples: []float64{3, 4, 5}}}
	if !reflect.DeepEqual(chans, want) {
		t.Errorf("Wanted %v, got %v", want, chans)
	}
	if d.overrun != 2 {
		t.Errorf("Wanted 2 overrun samples, got %d", d.overrun)
	}
	if cursors["x"] != 5 {
		t.Errorf("Cursor should be 5, got %d", cursors["x"])
	}
}

func TestCollectKeepsDeltasFlowingOnceFull(t *testing.T) {
	buf := buffer.New(4)
	cursors := map[string]uint64{}
	var got []float64
	next := 0.0
	for cycle := 0; cycle < 20; cycle++ {
		block := make([]float64, 3)
		for i := range block {
			block[i] = next
			next++
		}
		buf.AddData(map[string][]float64{"x": block})
		chans, _ := collect(buf.Snapshot(), cursors, 2)
		for _, ch := range chans {
			if len(ch.Samples) > 2 {
				t.Fatalf("Cycle %d: sent %d samples, cap is 2", cycle, len(ch.Samples))
			}
			got = append(got, ch.Samples...)
		}
	}

	if len(got) != 40 {
		t.Errorf("Wanted 40 samples sent, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("Samples sent out of order or twice: %v", got)
		}
	}
}

func TestCollectResyncsAfterClear(t *testing.T) {
	buf := buffer.New(10)
	buf.AddData(map[string][]float64{"x": {1, 2, 3}})
	cursors := map[string]uint64{}
	collect(buf.Snapshot(), cursors, 10)

	buf.Clear()
	buf.AddData(map[string][]float64{"x": {7}})
	chans, _ := collect(buf.Snapshot(), cursors, 10)
	want := []frame.Channel{{Name: "x", Samples: []float64{7}}}
	if !reflect.DeepEqual(chans, want) {
		t.Errorf("Wanted %v, got %v", want, chans)
	}
	if cursors["x"] != 1 {
		t.Errorf("Cursor should be 1 after the clear, got %d", cursors["x"])
	}

	buf.AddData(map[string][]float64{"x": {8}})
	chans, _ = collect(buf.Snapshot(), cursors, 10)
	want = []frame.Channel{{Name: "x", Samples: []float64{8}}}
	if !reflect.DeepEqual(chans, want) {
		t.Errorf("Wanted %v, got %v", want, chans)
	}
}

func TestFailedSendCountsLostSamples(t *testing.T) {
	sink := &recordingSink{fail: errors.New("connection reset")}
	s, err := NewSession(newFakeSource("x", "y"), sink, WithLogger(testLog), WithSendCap(2))
	if err != nil {
		t.Fatalf("NewSession: %s", err)
	}
	cursors := map[string]uint64{}

	s.buf.AddData(map[string][]float64{"x": {1, 2, 3}, "y": {4}})
	s.transmitOnce(context.Background(), s.log, cursors)

	st := s.TimingStats()
	if st.SamplesLost != 3 || st.SamplesSent != 0 || st.SamplesCapped != 1 || st.SendFailures != 1 {
		t.Errorf("Wrong stats: %+v", st)
	}
	if err := <-s.Errors(); err == nil {
		t.Errorf("Wanted the send failure reported")
	}
}

func TestTransmitSkipsEmptyCycles(t *testing.T) {
	src := newFakeSource("x")
	sink := &recordingSink{}
	s, err := NewSession(src, sink, WithLogger(testLog))
	if err != nil {
		t.Fatalf("NewSession: %s", err)
	}
	cursors := map[string]uint64{}

	s.transmitOnce(context.Background(), s.log, cursors)
	if n := len(sink.frames()); n != 0 {
		t.Errorf("Empty buffer should send nothing, sent %d frames", n)
	}

	s.buf.AddData(map[string][]float64{"x": {1}})
	s.transmitOnce(context.Background(), s.log, cursors)
	s.transmitOnce(context.Background(), s.log, cursors)
	if n := len(sink.frames()); n != 1 {
		t.Errorf("Wanted 1 frame, got %d", n)
	}

	st := s.TimingStats()
	if st.TransmissionCycles != 3 || st.EmptyCycles != 2 || st.FramesSent != 1 || st.SamplesSent != 1 {
		t.Errorf("Wrong stats: %+v", st)
	}
}
