// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package mqttsink publishes frames to an MQTT topic, for streaming without a connected viewer.
package mqttsink

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultPublishTimeout bounds how long Send waits for the broker.
const DefaultPublishTimeout = 2 * time.Second

// ErrPublishTimeout is returned by Send when the broker doesn't acknowledge a frame in time.
var ErrPublishTimeout = errors.New("publish timeout")

// Publisher is the part of mqtt.Client a Sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Sink publishes each frame as one message on Topic.
// It implements daqstream.Sink.
type Sink struct {
	Topic          string
	QoS            byte
	PublishTimeout time.Duration

	client Publisher
}

// New makes a Sink publishing to topic through client.
func New(client Publisher, topic string) *Sink {
	return &Sink{
		Topic:          topic,
		PublishTimeout: DefaultPublishTimeout,
		client:         client,
	}
}

// Send publishes frame, and waits for the broker to take it.
func (s *Sink) Send(ctx context.Context, frame []byte) error {
	token := s.client.Publish(s.Topic, s.QoS, false, frame)

	timeout := s.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-token.Done():
		return errors.Wrap(token.Error(), "Publish")
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return ErrPublishTimeout
	}
}

// Connect connects to an MQTT broker, reconnecting automatically if the connection drops.
func Connect(broker, clientID string, log logrus.FieldLogger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.WithFields(logrus.Fields{
			"broker":    broker,
			"client_id": clientID,
		}).Info("MQTT connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.WithFields(logrus.Fields{
			"broker": broker,
			"error":  err,
		}).Warn("MQTT connection lost; reconnecting")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, errors.Errorf("Connect to MQTT broker %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "Connect to MQTT broker %s", broker)
	}
	return client, nil
}
