// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package server

import (
	"sync"
	"time"

	"github.com/n0ot/daqstreamd/pkg/daqstream"
	"github.com/n0ot/daqstreamd/pkg/model"
)

type registry struct {
	lock             sync.RWMutex // Protects the entire registry
	clients          map[uint64]*client
	statsPassword    string
	createdTime      time.Time
	maxClients       int
	maxClientsTime   time.Time
	maxStreaming     int
	maxStreamingTime time.Time

	// Totals from clients which have left
	framesSent uint64
	bytesSent  uint64
}

func (reg *registry) add(c *client) {
	reg.lock.Lock()
	defer reg.lock.Unlock()

	reg.clients[c.id] = c
	if len(reg.clients) > reg.maxClients {
		reg.maxClients = len(reg.clients)
		reg.maxClientsTime = time.Now()
	}
}

func (reg *registry) remove(c *client) {
	reg.lock.Lock()
	defer reg.lock.Unlock()

	if _, ok := reg.clients[c.id]; !ok {
		return
	}
	delete(reg.clients, c.id)
	st := c.session.TimingStats()
	reg.framesSent += st.FramesSent
	reg.bytesSent += st.BytesSent
}

// noteStreaming records a new high water mark of streaming clients, if there is one.
func (reg *registry) noteStreaming() {
	reg.lock.Lock()
	defer reg.lock.Unlock()

	if n := reg.numStreaming(); n > reg.maxStreaming {
		reg.maxStreaming = n
		reg.maxStreamingTime = time.Now()
	}
}

func (reg *registry) numStreaming() int {
	var n int
	for _, c := range reg.clients {
		if c.session.State() == daqstream.Active {
			n++
		}
	}
	return n
}

// Stats gets stats for this registry.
func (reg *registry) Stats() model.ServerStats {
	reg.lock.RLock()
	defer reg.lock.RUnlock()

	st := model.ServerStats{
		Uptime:           time.Since(reg.createdTime),
		NumClients:       len(reg.clients),
		MaxClients:       reg.maxClients,
		MaxClientsTime:   reg.maxClientsTime,
		NumStreaming:     reg.numStreaming(),
		MaxStreaming:     reg.maxStreaming,
		MaxStreamingTime: reg.maxStreamingTime,
		FramesSent:       reg.framesSent,
		BytesSent:        reg.bytesSent,
	}
	for _, c := range reg.clients {
		ts := c.session.TimingStats()
		st.FramesSent += ts.FramesSent
		st.BytesSent += ts.BytesSent
	}
	return st
}
