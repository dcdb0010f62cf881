// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package server

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/n0ot/daqstreamd/pkg/daqstream"
	"github.com/n0ot/daqstreamd/pkg/model"
)

const (
	sendBuffSize = 10               // Buffer size of channel for sending data to clients
	writeWait    = 10 * time.Second // Time allowed to write one message
)

var errClientStopped = errors.New("client stopped")

// outbound is a message waiting to be written to a client.
type outbound struct {
	kind int // websocket.TextMessage or websocket.BinaryMessage
	data []byte
}

// client is one connected viewer and its streaming session.
// Every message written to the connection goes through outbound, in order,
// so frames and replies are never reordered or merged.
type client struct {
	id       uint64
	conn     *websocket.Conn
	session  *daqstream.Session
	registry *registry
	log      *logrus.Entry

	outbound chan outbound
	done     chan struct{} // Closed when client is finished
	stopOnce sync.Once
	// stoppedReason is the reason the client was stopped. Set before done is closed.
	stoppedReason string
}

func (srv *Server) serveClient(conn *websocket.Conn, id uint64, remoteHost string) {
	c := &client{
		id:       id,
		conn:     conn,
		registry: &srv.registry,
		outbound: make(chan outbound, sendBuffSize),
		done:     make(chan struct{}),
		log: srv.Log.WithFields(logrus.Fields{
			"client": id,
			"host":   remoteHost,
		}),
	}
	c.log.Info("Client connected")

	src, err := srv.Source()
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"error": err,
		}).Error("Cannot open sample source")
		c.closeWithError("no sample source available")
		return
	}
	opts := append([]daqstream.Option{daqstream.WithLogger(c.log)}, srv.SessionOptions...)
	c.session, err = daqstream.NewSession(src, c, opts...)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"error": err,
		}).Error("Cannot create streaming session")
		closeSource(src, c.log)
		c.closeWithError("cannot create streaming session")
		return
	}

	c.registry.add(c)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.write(srv.TimeBetweenPings)
	}()

	if srv.MOTD != "" {
		c.send(model.MOTDMessage{
			DefaultMessage: model.DefaultMessage{Type: "motd"},
			MOTD:           srv.MOTD,
		})
	}
	c.send(model.SessionMessage{
		DefaultMessage: model.DefaultMessage{Type: "session"},
		ID:             c.session.ID,
		Channels:       c.session.Channels(),
		Config:         c.session.Config(),
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		c.read(srv.deadline())
	}()
	go func() {
		defer wg.Done()
		c.watchSession()
	}()

	<-c.done
	if err := c.session.Stop(); err != nil {
		c.log.WithFields(logrus.Fields{
			"error": err,
		}).Warn("Error stopping streaming session")
	}
	closeSource(src, c.log)
	c.registry.remove(c)

	// The writer flushes and says goodbye once done is closed;
	// closing the connection then unblocks the reader.
	wg.Wait()
	c.log.WithFields(logrus.Fields{
		"reason": c.stoppedReason,
	}).Info("Client disconnected")
}

// write writes queued messages to the connection, and pings the client.
func (c *client) write(timeBetweenPings time.Duration) {
	defer c.conn.Close()

	var pingsCH <-chan time.Time
	if timeBetweenPings > 0 {
		ticker := time.NewTicker(timeBetweenPings)
		defer ticker.Stop()
		pingsCH = ticker.C
	}

	for {
		select {
		case msg := <-c.outbound:
			if err := c.writeMessage(msg); err != nil {
				c.log.WithFields(logrus.Fields{
					"error": err,
				}).Debug("Error writing to client")
				c.stop("Send error")
				return
			}

		case <-pingsCH:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.stop("Ping error")
				return
			}

		case <-c.done:
			c.flush()
			closeMSG := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.stoppedReason)
			c.conn.WriteControl(websocket.CloseMessage, closeMSG, time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is already queued, so replies sent just before stopping aren't lost.
func (c *client) flush() {
	for {
		select {
		case msg := <-c.outbound:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *client) writeMessage(msg outbound) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msg.kind, msg.data)
}

// read receives control messages from the client, and handles them.
// If deadline isn't 0, a client which sends nothing, not even a pong, for that long is dropped.
func (c *client) read(deadline time.Duration) {
	extendDeadline := func() {
		if deadline > 0 {
			c.conn.SetReadDeadline(time.Now().Add(deadline))
		}
	}
	extendDeadline()
	c.conn.SetPongHandler(func(string) error {
		extendDeadline()
		return nil
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case c.stopped():
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway), errors.Cause(err) == io.EOF:
				c.stop("Client disconnected")
			default:
				c.log.WithFields(logrus.Fields{
					"error": err,
				}).Debug("Error reading from client")
				c.stop("Receive error")
			}
			return
		}
		extendDeadline()

		if kind != websocket.TextMessage {
			c.sendError("only text messages are accepted")
			continue
		}
		c.handleMessage(data)
	}
}

// watchSession stops the client when its session can't send frames anymore.
func (c *client) watchSession() {
	select {
	case err := <-c.session.Errors():
		c.log.WithFields(logrus.Fields{
			"error": err,
		}).Warn("Streaming to client failed")
		c.stop("Send error")
	case <-c.done:
	}
}

// Send queues an encoded frame for the client.
// It implements daqstream.Sink.
func (c *client) Send(ctx context.Context, frame []byte) error {
	select {
	case c.outbound <- outbound{websocket.BinaryMessage, frame}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errClientStopped
	}
}

// send serializes msg, and queues it for the client.
// Messages sent after the client stops are dropped.
func (c *client) send(msg model.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"error": err,
			"type":  msg.Message(),
		}).Error("Cannot serialize message")
		return
	}

	select {
	case c.outbound <- outbound{websocket.TextMessage, data}:
	case <-c.done:
	}
}

func (c *client) sendError(reason string) {
	c.send(model.NewErrorMessage(reason))
}

// closeWithError tells a client that was never fully served why, and hangs up.
func (c *client) closeWithError(reason string) {
	defer c.conn.Close()
	data, err := json.Marshal(model.NewErrorMessage(reason))
	if err != nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.TextMessage, data)
	closeMSG := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason)
	c.conn.WriteControl(websocket.CloseMessage, closeMSG, time.Now().Add(writeWait))
}

// stopped returns true if the client was stopped.
func (c *client) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// stop stops a client.
// stop is idempotent; calling stop more than once will have no effect.
func (c *client) stop(reason string) {
	c.stopOnce.Do(func() {
		c.stoppedReason = reason
		close(c.done)
	})
}

func closeSource(src interface{}, log logrus.FieldLogger) {
	closer, ok := src.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		log.WithFields(logrus.Fields{
			"error": err,
		}).Warn("Error closing sample source")
	}
}
