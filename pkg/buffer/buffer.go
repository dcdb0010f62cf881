// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package buffer holds the most recent samples for a set of named channels.
package buffer

import (
	"sort"
	"sync"
)

// ChannelBuffer keeps a fixed-size window of the most recent samples for each channel.
// One writer and any number of readers may use it concurrently;
// every write and every read covers the whole buffer at once,
// so readers never see half of a block.
type ChannelBuffer struct {
	mu          sync.RWMutex // Protects everything below
	capacity    int
	channels    map[string]*ring
	order       []string // Channel names in the order they were added
	sampleCount uint64
}

// ChannelSnapshot is a point in time copy of one channel.
type ChannelSnapshot struct {
	Name    string
	Samples []float64
	// Total is the number of samples ever appended to the channel since the buffer was last cleared.
	// It keeps counting after the window is full, so it can be compared with a stream cursor.
	Total uint64
}

// New creates a ChannelBuffer holding up to capacity samples per channel.
func New(capacity int) *ChannelBuffer {
	if capacity < 1 {
		panic("buffer: capacity must be at least 1")
	}
	return &ChannelBuffer{
		capacity: capacity,
		channels: make(map[string]*ring),
	}
}

// Capacity returns the maximum number of samples kept per channel.
func (b *ChannelBuffer) Capacity() int {
	return b.capacity
}

// AddChannel adds a channel if it doesn't already exist.
func (b *ChannelBuffer) AddChannel(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addChannel(name)
}

func (b *ChannelBuffer) addChannel(name string) *ring {
	r, ok := b.channels[name]
	if !ok {
		r = newRing(b.capacity)
		b.channels[name] = r
		b.order = append(b.order, name)
	}
	return r
}

// AddData appends samples to each named channel, creating channels as needed.
// Channels not yet known are added in sorted order.
func (b *ChannelBuffer) AddData(data map[string][]float64) {
	if len(data) == 0 {
		return
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		b.addChannel(name).push(data[name])
	}
	for _, name := range b.order {
		if values, ok := data[name]; ok {
			b.sampleCount += uint64(len(values))
			break
		}
	}
}

// AddBlock appends one acquisition block, where block[i] holds the new samples for names[i].
// Unknown channels are added in the order given.
func (b *ChannelBuffer) AddBlock(names []string, block [][]float64) {
	n := len(names)
	if len(block) < n {
		n = len(block)
	}
	if n == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.addChannel(names[i]).push(block[i])
	}
	b.sampleCount += uint64(len(block[0]))
}

// GetData returns a copy of every channel's window.
func (b *ChannelBuffer) GetData() map[string][]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data := make(map[string][]float64, len(b.channels))
	for name, r := range b.channels {
		data[name] = r.window(0)
	}
	return data
}

// Snapshot returns a copy of every channel, in the order channels were added.
func (b *ChannelBuffer) Snapshot() []ChannelSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := make([]ChannelSnapshot, 0, len(b.order))
	for _, name := range b.order {
		r := b.channels[name]
		snap = append(snap, ChannelSnapshot{
			Name:    name,
			Samples: r.window(0),
			Total:   r.total,
		})
	}
	return snap
}

// Window returns up to maxPoints of the most recent samples in a channel.
// If maxPoints is 0 or less, the whole window is returned.
// Unknown channels yield nil.
func (b *ChannelBuffer) Window(name string, maxPoints int) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.channels[name]
	if !ok {
		return nil
	}
	return r.window(maxPoints)
}

// Channels returns the channel names in the order they were added.
func (b *ChannelBuffer) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Clear empties every channel, keeping the channels themselves.
func (b *ChannelBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.channels {
		r.reset()
	}
	b.sampleCount = 0
}

// GetLength returns the number of samples held by the first channel.
func (b *ChannelBuffer) GetLength() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.order) == 0 {
		return 0
	}
	return b.channels[b.order[0]].length
}

// SampleCount returns the number of samples per channel added since the last Clear.
func (b *ChannelBuffer) SampleCount() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sampleCount
}
