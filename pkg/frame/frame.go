// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package frame encodes and decodes the binary frames sent to viewers.
//
// All fields are big-endian:
//
//	timestamp      float64, seconds since the Unix epoch
//	channel_count  int32
//	channel_count times:
//	  name_length   int32
//	  name          name_length bytes of UTF-8
//	  sample_count  int32
//	  samples       sample_count float64s
package frame

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Errors returned by Decode.
var (
	ErrTruncated      = errors.New("frame truncated")
	ErrNegativeLength = errors.New("negative length in frame")
	ErrTrailingBytes  = errors.New("trailing bytes after frame")
)

// Channel carries the new samples for one channel.
type Channel struct {
	Name    string
	Samples []float64
}

// Frame is one transmitted unit of samples.
type Frame struct {
	Timestamp float64 // Seconds since the Unix epoch
	Channels  []Channel
}

// Time converts the frame's timestamp to a time.Time.
func (f *Frame) Time() time.Time {
	sec, frac := math.Modf(f.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Timestamp converts t to the frame timestamp representation.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Size returns the number of bytes f encodes to.
func (f *Frame) Size() int {
	n := 8 + 4
	for _, ch := range f.Channels {
		n += 4 + len(ch.Name) + 4 + 8*len(ch.Samples)
	}
	return n
}

// Encode encodes f into a new byte slice.
func Encode(f *Frame) []byte {
	return AppendEncode(make([]byte, 0, f.Size()), f)
}

// AppendEncode appends the encoding of f to dst, and returns the extended slice.
// A name or sample count which doesn't fit in an int32 means the caller's state is corrupt,
// and causes a panic.
func AppendEncode(dst []byte, f *Frame) []byte {
	dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(f.Timestamp))
	dst = appendLength(dst, len(f.Channels))
	for _, ch := range f.Channels {
		dst = appendLength(dst, len(ch.Name))
		dst = append(dst, ch.Name...)
		dst = appendLength(dst, len(ch.Samples))
		for _, v := range ch.Samples {
			dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(v))
		}
	}
	return dst
}

func appendLength(dst []byte, n int) []byte {
	if n < 0 || n > math.MaxInt32 {
		panic(errors.Errorf("frame: length %d does not fit in an int32", n))
	}
	return binary.BigEndian.AppendUint32(dst, uint32(n))
}

// Decode parses a frame produced by Encode.
func Decode(b []byte) (*Frame, error) {
	d := decoder{buf: b}
	ts, err := d.float64()
	if err != nil {
		return nil, errors.Wrap(err, "timestamp")
	}
	count, err := d.length()
	if err != nil {
		return nil, errors.Wrap(err, "channel count")
	}

	f := &Frame{Timestamp: ts}
	// Each channel needs at least 8 bytes, so don't trust count for the allocation.
	if count <= len(d.buf)/8 {
		f.Channels = make([]Channel, 0, count)
	}
	for i := 0; i < count; i++ {
		nameLen, err := d.length()
		if err != nil {
			return nil, errors.Wrapf(err, "channel %d name length", i)
		}
		name, err := d.bytes(nameLen)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %d name", i)
		}
		sampleCount, err := d.length()
		if err != nil {
			return nil, errors.Wrapf(err, "channel %d sample count", i)
		}
		if sampleCount > len(d.buf)/8 {
			return nil, errors.Wrapf(ErrTruncated, "channel %d samples", i)
		}
		samples := make([]float64, sampleCount)
		for j := range samples {
			samples[j], _ = d.float64()
		}
		f.Channels = append(f.Channels, Channel{Name: string(name), Samples: samples})
	}

	if len(d.buf) != 0 {
		return nil, errors.Wrapf(ErrTrailingBytes, "%d bytes", len(d.buf))
	}
	return f, nil
}

type decoder struct {
	buf []byte
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if len(d.buf) < n {
		return nil, ErrTruncated
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b, nil
}

func (d *decoder) float64() (float64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (d *decoder) length() (int, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	n := int32(binary.BigEndian.Uint32(b))
	if n < 0 {
		return 0, ErrNegativeLength
	}
	return int(n), nil
}
