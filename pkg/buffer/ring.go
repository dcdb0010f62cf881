// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package buffer

// ring is a fixed size circular window over one channel's samples.
type ring struct {
	samples []float64
	head    int // Index of the oldest sample
	length  int
	total   uint64
}

func newRing(capacity int) *ring {
	return &ring{samples: make([]float64, capacity)}
}

func (r *ring) push(values []float64) {
	c := len(r.samples)
	r.total += uint64(len(values))

	// Only the last c values can survive.
	if len(values) >= c {
		copy(r.samples, values[len(values)-c:])
		r.head = 0
		r.length = c
		return
	}

	for _, v := range values {
		r.samples[(r.head+r.length)%c] = v
		if r.length < c {
			r.length++
		} else {
			r.head = (r.head + 1) % c
		}
	}
}

// window copies out the newest max samples, oldest first. max <= 0 means all of them.
func (r *ring) window(max int) []float64 {
	n := r.length
	if max > 0 && max < n {
		n = max
	}
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	c := len(r.samples)
	start := (r.head + r.length - n) % c
	end := start + n
	if end > c {
		end = c
	}
	first := copy(out, r.samples[start:end])
	copy(out[first:], r.samples[:n-first])
	return out
}

func (r *ring) reset() {
	r.head = 0
	r.length = 0
	r.total = 0
}
