// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package model holds the JSON control messages exchanged between daqstreamd and its viewers.
// Frames of samples are not JSON; see package frame.
package model

import (
	"time"

	"github.com/n0ot/daqstreamd/pkg/daqstream"
)

// ProtocolVersion is the version of the control protocol spoken by this server.
const ProtocolVersion = 1

// A Message is sent to and from clients.
// All Messages should wrap DefaultMessage, so they have a Type field which marshals to json as "type."
// This interface allows generic messages to be passed.
type Message interface {
	Message() string
}

// DefaultMessage implements Message, and has a type.
// Messages with no fields besides their type, such as "start" and "stopped," are sent as a DefaultMessage.
type DefaultMessage struct {
	Type string `json:"type"`
}

// Message gets the type of a DefaultMessage.
// This ensures that DefaultMessage implements the Message interface.
func (msg DefaultMessage) Message() string {
	return msg.Type
}

// An ErrorMessage is sent to clients when an error has occured.
type ErrorMessage struct {
	DefaultMessage
	Error string `json:"error"`
}

// NewErrorMessage creates an error message with the specified reason.
func NewErrorMessage(reason string) ErrorMessage {
	return ErrorMessage{
		DefaultMessage: DefaultMessage{"error"},
		Error:          reason,
	}
}

// ProtocolVersionMessage contains the protocol version sent by a client.
type ProtocolVersionMessage struct {
	DefaultMessage
	Version int `json:"version"`
}

// SetUpdateRateMessage asks for a new update rate, in Hz.
type SetUpdateRateMessage struct {
	DefaultMessage
	Hz float64 `json:"hz"`
}

// SetSendCapMessage asks for a new per channel send cap.
type SetSendCapMessage struct {
	DefaultMessage
	Cap int `json:"cap"`
}

// SetSamplesPerReadMessage asks for a new acquisition block size.
type SetSamplesPerReadMessage struct {
	DefaultMessage
	Samples int `json:"samples"`
}

// StatMessage is sent by clients requesting server stats.
type StatMessage struct {
	DefaultMessage
	Password string `json:"password"`
}

// MOTDMessage contains the message of the day, and is sent to connecting clients.
type MOTDMessage struct {
	DefaultMessage
	MOTD         string `json:"motd"`
	ForceDisplay bool   `json:"force_display"`
}

// SessionMessage describes the streaming session made for a newly connected client.
type SessionMessage struct {
	DefaultMessage
	ID       string           `json:"id"`
	Channels []string         `json:"channels"`
	Config   daqstream.Config `json:"config"`
}

// ConfigMessage carries a session's current settings.
type ConfigMessage struct {
	DefaultMessage
	Config daqstream.Config `json:"config"`
}

// NewConfigMessage wraps cfg in a ConfigMessage.
func NewConfigMessage(cfg daqstream.Config) ConfigMessage {
	return ConfigMessage{
		DefaultMessage: DefaultMessage{"config"},
		Config:         cfg,
	}
}

// TimingStatsMessage carries a session's timing stats.
type TimingStatsMessage struct {
	DefaultMessage
	Stats daqstream.TimingStats `json:"stats"`
}

// ServerStats contains summary information about a running server.
type ServerStats struct {
	Uptime           time.Duration `json:"uptime"`
	NumClients       int           `json:"num_clients"`
	MaxClients       int           `json:"max_clients"`
	MaxClientsTime   time.Time     `json:"max_clients_at"`
	NumStreaming     int           `json:"num_streaming"`
	MaxStreaming     int           `json:"max_streaming"`
	MaxStreamingTime time.Time     `json:"max_streaming_at"`
	FramesSent       uint64        `json:"frames_sent"`
	BytesSent        uint64        `json:"bytes_sent"`
}

// StatsMessage contains information about the running state of the server.
type StatsMessage struct {
	DefaultMessage
	Stats ServerStats `json:"stats"`
}
