package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/n0ot/daqstreamd/pkg/frame"
	"github.com/n0ot/daqstreamd/pkg/model"
)

func TestDecodeServerMessage(t *testing.T) {
	msg, err := decodeServerMessage([]byte(`{"type":"error","error":"wrong password"}`))
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	errMSG, ok := msg.(*model.ErrorMessage)
	if !ok {
		t.Fatalf("Wanted an ErrorMessage, got %T", msg)
	}
	if errMSG.Error != "wrong password" {
		t.Errorf("Wrong error: %s", errMSG.Error)
	}

	msg, err = decodeServerMessage([]byte(`{"type":"from_the_future"}`))
	if err != nil || msg != nil {
		t.Errorf("Unknown messages should be ignored, got %v, %v", msg, err)
	}

	if _, err := decodeServerMessage([]byte(`not json`)); err == nil {
		t.Errorf("Wanted an error for invalid JSON")
	}
}

func TestDescribeFrame(t *testing.T) {
	f := &frame.Frame{
		Timestamp: frame.Timestamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)),
		Channels: []frame.Channel{
			{Name: "ai0", Samples: []float64{1, 2.5}},
			{Name: "ai1", Samples: []float64{}},
		},
	}
	want := "03:04:05.000  ai0[2]=2.5000  ai1[0]"
	if got := describeFrame(f); got != want {
		t.Errorf("Wanted %q, got %q", want, got)
	}
}

func TestWatchSummary(t *testing.T) {
	var s watchSummary
	s.start = time.Now()
	s.add(&frame.Frame{Channels: []frame.Channel{{Name: "a", Samples: []float64{1, 2, 3}}}}, 40)
	s.add(&frame.Frame{Channels: []frame.Channel{{Name: "a", Samples: []float64{4}}}}, 20)

	var out bytes.Buffer
	s.print(&out)
	if !strings.Contains(out.String(), "2 frames, 4 samples, 60 bytes") {
		t.Errorf("Wrong summary: %q", out.String())
	}
}
