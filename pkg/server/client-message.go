// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package server

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/n0ot/daqstreamd/pkg/daqstream"
	"github.com/n0ot/daqstreamd/pkg/model"
)

var clientMessages map[string]func() model.Message
var clientMessageHandlers map[string]clientMessageHandlerFunc

type clientMessageHandlerFunc func(*client, model.Message)

// wrongPasswordDelay slows down guessing the stats password.
var wrongPasswordDelay = 5 * time.Second

func init() {
	clientMessages = make(map[string]func() model.Message)
	clientMessageHandlers = make(map[string]clientMessageHandlerFunc)

	clientMessages["protocol_version"] = func() model.Message {
		return &model.ProtocolVersionMessage{}
	}
	clientMessageHandlers["protocol_version"] = handleClientProtocolVersion

	clientMessageHandlers["start"] = handleClientStart
	clientMessageHandlers["stop"] = handleClientStop
	clientMessageHandlers["config"] = handleClientConfig
	clientMessageHandlers["timing_stats"] = handleClientTimingStats

	clientMessages["set_update_rate"] = func() model.Message {
		return &model.SetUpdateRateMessage{}
	}
	clientMessageHandlers["set_update_rate"] = handleClientSetUpdateRate

	clientMessages["set_send_cap"] = func() model.Message {
		return &model.SetSendCapMessage{}
	}
	clientMessageHandlers["set_send_cap"] = handleClientSetSendCap

	clientMessages["set_samples_per_read"] = func() model.Message {
		return &model.SetSamplesPerReadMessage{}
	}
	clientMessageHandlers["set_samples_per_read"] = handleClientSetSamplesPerRead

	clientMessages["stat"] = func() model.Message {
		return &model.StatMessage{}
	}
	clientMessageHandlers["stat"] = handleClientStatMessage
}

// handleMessage decodes a control message from the client, and passes it to its handler.
func (c *client) handleMessage(data []byte) {
	var generic model.DefaultMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		c.sendError("invalid message")
		c.stop("protocol error")
		return
	}

	handler, ok := clientMessageHandlers[generic.Type]
	if !ok {
		c.log.WithFields(logrus.Fields{
			"type": generic.Type,
		}).Debug("Unknown message type")
		c.sendError("unknown message type")
		return
	}

	var msg model.Message = generic
	if newMSG, ok := clientMessages[generic.Type]; ok {
		msg = newMSG()
		if err := json.Unmarshal(data, msg); err != nil {
			c.sendError("invalid " + generic.Type + " message")
			return
		}
	}
	handler(c, msg)
}

func handleClientProtocolVersion(c *client, msg model.Message) {
	protvMSG := msg.(*model.ProtocolVersionMessage)
	// Clients may continue without providing a version, but those who provide one we don't speak are kicked.
	if protvMSG.Version != model.ProtocolVersion {
		c.sendError("version unsupported")
		c.stop("protocol version unsupported")
	}
}

func handleClientStart(c *client, msg model.Message) {
	if err := c.session.Start(); err != nil {
		c.log.WithFields(logrus.Fields{
			"error": err,
		}).Warn("Cannot start streaming")
		if errors.Cause(err) == daqstream.ErrSourceNotInitialized {
			c.sendError("sample source not initialized")
		} else {
			c.sendError("cannot start streaming")
		}
		return
	}
	c.registry.noteStreaming()
	c.send(model.DefaultMessage{Type: "started"})
}

func handleClientStop(c *client, msg model.Message) {
	if err := c.session.Stop(); err != nil {
		c.log.WithFields(logrus.Fields{
			"error": err,
		}).Warn("Error stopping streaming")
	}
	c.send(model.DefaultMessage{Type: "stopped"})
}

func handleClientConfig(c *client, msg model.Message) {
	c.send(model.NewConfigMessage(c.session.Config()))
}

func handleClientTimingStats(c *client, msg model.Message) {
	c.send(model.TimingStatsMessage{
		DefaultMessage: model.DefaultMessage{Type: "timing_stats"},
		Stats:          c.session.TimingStats(),
	})
}

func handleClientSetUpdateRate(c *client, msg model.Message) {
	c.applySetting(c.session.SetUpdateRate(msg.(*model.SetUpdateRateMessage).Hz))
}

func handleClientSetSendCap(c *client, msg model.Message) {
	c.applySetting(c.session.SetSendCap(msg.(*model.SetSendCapMessage).Cap))
}

func handleClientSetSamplesPerRead(c *client, msg model.Message) {
	c.applySetting(c.session.SetSamplesPerRead(msg.(*model.SetSamplesPerReadMessage).Samples))
}

// applySetting replies with the session's config, or with why a setting was refused.
func (c *client) applySetting(err error) {
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.send(model.NewConfigMessage(c.session.Config()))
}

func handleClientStatMessage(c *client, msg model.Message) {
	statReq := msg.(*model.StatMessage)

	if c.session.State() != daqstream.Stopped {
		c.sendError("no stats while streaming")
		c.stop("protocol error")
		return
	}
	if statReq.Password == "" {
		c.sendError("no password")
		c.stop("no stats password provided")
		return
	}
	if c.registry.statsPassword != statReq.Password {
		time.Sleep(wrongPasswordDelay) // Prevent brute forcing
		c.sendError("wrong password")
		c.stop("wrong stats password")
		return
	}

	c.send(model.StatsMessage{
		DefaultMessage: model.DefaultMessage{Type: "stats"},
		Stats:          c.registry.Stats(),
	})
	c.stop("stats request completed")
}
