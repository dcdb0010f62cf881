package frame

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestRoundTrip(t *testing.T) {
	f := &Frame{
		Timestamp: 1729326000.123456,
		Channels: []Channel{
			{Name: "cDAQ1Mod1/ai0", Samples: []float64{0, -1.5, math.MaxFloat64, math.SmallestNonzeroFloat64}},
			{Name: "ünïcode", Samples: []float64{42}},
			{Name: "", Samples: []float64{}},
		},
	}

	buf := Encode(f)
	if len(buf) != f.Size() {
		t.Errorf("Encoded %d bytes, Size() reports %d", len(buf), f.Size())
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	if !reflect.DeepEqual(got, f) {
		t.Errorf("Round trip mismatch; wanted %+v, got %+v", f, got)
	}
}

func TestEncodeLayout(t *testing.T) {
	f := &Frame{
		Timestamp: 2.5,
		Channels:  []Channel{{Name: "x", Samples: []float64{1}}},
	}

	var want bytes.Buffer
	binary.Write(&want, binary.BigEndian, float64(2.5))
	binary.Write(&want, binary.BigEndian, int32(1))
	binary.Write(&want, binary.BigEndian, int32(1))
	want.WriteString("x")
	binary.Write(&want, binary.BigEndian, int32(1))
	binary.Write(&want, binary.BigEndian, float64(1))

	if got := Encode(f); !bytes.Equal(got, want.Bytes()) {
		t.Errorf("Wrong encoding;\nwanted %x\ngot    %x", want.Bytes(), got)
	}
}

func TestAppendEncodeReusesBuffer(t *testing.T) {
	f := &Frame{Timestamp: 1, Channels: []Channel{{Name: "a", Samples: []float64{1, 2}}}}
	dst := []byte("prefix")
	out := AppendEncode(dst, f)
	if !bytes.HasPrefix(out, []byte("prefix")) {
		t.Fatalf("AppendEncode dropped the existing contents")
	}
	if _, err := Decode(out[len("prefix"):]); err != nil {
		t.Errorf("Decode appended frame: %s", err)
	}
}

func TestDecodeEmptyFrame(t *testing.T) {
	got, err := Decode(Encode(&Frame{Timestamp: 3}))
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	if got.Timestamp != 3 || len(got.Channels) != 0 {
		t.Errorf("Wanted an empty frame at 3, got %+v", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := Encode(&Frame{Timestamp: 1, Channels: []Channel{{Name: "abc", Samples: []float64{1, 2, 3}}}})

	negative := append([]byte(nil), valid[:12]...)
	negative = binary.BigEndian.AppendUint32(negative, uint32(0xFFFFFFFF)) // name length -1

	hugeSamples := append([]byte(nil), valid[:12]...)
	hugeSamples = binary.BigEndian.AppendUint32(hugeSamples, 1)
	hugeSamples = append(hugeSamples, 'a')
	hugeSamples = binary.BigEndian.AppendUint32(hugeSamples, math.MaxInt32)

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"short timestamp", valid[:5], ErrTruncated},
		{"missing channel count", valid[:8], ErrTruncated},
		{"missing name", valid[:17], ErrTruncated},
		{"missing samples", valid[:len(valid)-1], ErrTruncated},
		{"negative name length", negative, ErrNegativeLength},
		{"sample count larger than frame", hugeSamples, ErrTruncated},
		{"trailing bytes", append(append([]byte(nil), valid...), 0), ErrTrailingBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.buf)
			if errors.Cause(err) != tt.want {
				t.Errorf("Wanted %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTimestampConversion(t *testing.T) {
	now := time.Unix(1729326000, 250_000_000)
	f := Frame{Timestamp: Timestamp(now)}
	if math.Abs(f.Timestamp-1729326000.25) > 1e-6 {
		t.Errorf("Wanted 1729326000.25, got %f", f.Timestamp)
	}
	if d := f.Time().Sub(now); d > time.Microsecond || d < -time.Microsecond {
		t.Errorf("Time() off by %s", d)
	}
}
