// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package daqstream

import (
	"sync/atomic"
	"time"
)

// TimingStats describes how a session's loops have been doing since it was last started.
type TimingStats struct {
	State        string        `json:"state"`
	Config       Config        `json:"config"`
	StartedAt    time.Time     `json:"started_at"`
	Uptime       time.Duration `json:"uptime"`
	BufferLength int           `json:"buffer_length"`

	AcquisitionCycles uint64        `json:"acquisition_cycles"`
	ReadFailures      uint64        `json:"read_failures"`
	LastReadDuration  time.Duration `json:"last_read_duration"`
	AvgReadDuration   time.Duration `json:"avg_read_duration"`

	TransmissionCycles uint64        `json:"transmission_cycles"`
	EmptyCycles        uint64        `json:"empty_cycles"`
	FramesSent         uint64        `json:"frames_sent"`
	BytesSent          uint64        `json:"bytes_sent"`
	SamplesSent        uint64        `json:"samples_sent"`
	SendFailures       uint64        `json:"send_failures"`
	LastEncodeDuration time.Duration `json:"last_encode_duration"`
	LastSendDuration   time.Duration `json:"last_send_duration"`

	// SamplesCapped counts new samples left out of frames by the send cap.
	SamplesCapped uint64 `json:"samples_capped"`
	// SamplesOverrun counts samples pushed out of the buffer before they could be sent.
	SamplesOverrun uint64 `json:"samples_overrun"`
	// SamplesLost counts samples in frames the sink failed to take.
	SamplesLost uint64 `json:"samples_lost"`
}

type counters struct {
	startedAt atomic.Int64 // Unix nanoseconds

	acquisitionCycles atomic.Uint64
	readFailures      atomic.Uint64
	lastRead          atomic.Int64
	totalRead         atomic.Int64

	transmissionCycles atomic.Uint64
	emptyCycles        atomic.Uint64
	framesSent         atomic.Uint64
	bytesSent          atomic.Uint64
	samplesSent        atomic.Uint64
	sendFailures       atomic.Uint64
	lastEncode         atomic.Int64
	lastSend           atomic.Int64
	samplesCapped      atomic.Uint64
	samplesOverrun     atomic.Uint64
	samplesLost        atomic.Uint64
}

func (c *counters) reset(now time.Time) {
	c.startedAt.Store(now.UnixNano())
	for _, v := range []*atomic.Uint64{
		&c.acquisitionCycles, &c.readFailures, &c.transmissionCycles, &c.emptyCycles,
		&c.framesSent, &c.bytesSent, &c.samplesSent, &c.sendFailures,
		&c.samplesCapped, &c.samplesOverrun, &c.samplesLost,
	} {
		v.Store(0)
	}
	for _, v := range []*atomic.Int64{&c.lastRead, &c.totalRead, &c.lastEncode, &c.lastSend} {
		v.Store(0)
	}
}

func (c *counters) observeRead(d time.Duration, err error) {
	c.acquisitionCycles.Add(1)
	c.lastRead.Store(int64(d))
	c.totalRead.Add(int64(d))
	if err != nil {
		c.readFailures.Add(1)
	}
}

func (c *counters) snapshot() TimingStats {
	st := TimingStats{
		AcquisitionCycles:  c.acquisitionCycles.Load(),
		ReadFailures:       c.readFailures.Load(),
		LastReadDuration:   time.Duration(c.lastRead.Load()),
		TransmissionCycles: c.transmissionCycles.Load(),
		EmptyCycles:        c.emptyCycles.Load(),
		FramesSent:         c.framesSent.Load(),
		BytesSent:          c.bytesSent.Load(),
		SamplesSent:        c.samplesSent.Load(),
		SendFailures:       c.sendFailures.Load(),
		LastEncodeDuration: time.Duration(c.lastEncode.Load()),
		LastSendDuration:   time.Duration(c.lastSend.Load()),
		SamplesCapped:      c.samplesCapped.Load(),
		SamplesOverrun:     c.samplesOverrun.Load(),
		SamplesLost:        c.samplesLost.Load(),
	}
	if st.AcquisitionCycles > 0 {
		st.AvgReadDuration = time.Duration(c.totalRead.Load() / int64(st.AcquisitionCycles))
	}
	if started := c.startedAt.Load(); started != 0 {
		st.StartedAt = time.Unix(0, started)
	}
	return st
}
