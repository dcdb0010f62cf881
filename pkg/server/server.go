// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package server streams samples to viewers over WebSocket.
//
// Each connected viewer gets its own streaming session, with its own sample source and buffer.
// Viewers control their session with JSON text messages,
// and receive frames of samples as binary messages.
package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/n0ot/daqstreamd/pkg/daqstream"
	"github.com/n0ot/daqstreamd/pkg/model"
	"github.com/n0ot/daqstreamd/pkg/source"
)

// Server Contains state for a daqstreamd server.
type Server struct {
	// TimeBetweenPings specifies the amount of time that will elapse before clients will be sent a ping.
	// If 0, no pings will be sent.
	TimeBetweenPings time.Duration

	// PingsUntilTimeout specifies the number of pings to be sent before unresponsive clients will be kicked.
	// If TimeBetweenPings is 0, this field has no effect.
	PingsUntilTimeout int

	// TLSConfig optionally provides a TLS configuration for use by ListenAndServeTLS.
	TLSConfig *tls.Config

	// MOTD contains the message of the day, which will be sent to clients when connecting.
	MOTD string

	// StatsPassword sets the password for retreiving stats.
	StatsPassword string

	// Path is the URL path viewers connect to. Defaults to "/".
	Path string

	// Source opens a sample source for each new client.
	Source source.Factory

	// SessionOptions are applied to every client's streaming session.
	SessionOptions []daqstream.Option

	// CheckOrigin is passed to the WebSocket upgrader.
	// If nil, any origin is allowed, as viewers are often served from elsewhere.
	CheckOrigin func(r *http.Request) bool

	Log *logrus.Logger

	initOnce sync.Once
	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	// registry stores information about clients on the server.
	registry registry
}

func (srv *Server) init() {
	if srv.Log == nil {
		srv.Log = logrus.StandardLogger()
	}
	if srv.Path == "" {
		srv.Path = "/"
	}
	checkOrigin := srv.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     checkOrigin,
	}

	now := time.Now()
	srv.registry = registry{
		clients:          make(map[uint64]*client),
		statsPassword:    srv.StatsPassword,
		createdTime:      now,
		maxClientsTime:   now,
		maxStreamingTime: now,
	}
}

// ListenAndServe listens for connections on the network, and serves viewers.
func (srv *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "Listen")
	}
	defer listener.Close()

	srv.initOnce.Do(srv.init)
	srv.Log.WithFields(logrus.Fields{
		"addr":        addr,
		"path":        srv.Path,
		"tls_enabled": false,
	}).Info("Listening for incoming connections")
	return srv.Serve(listener)
}

// ListenAndServeTLS behaves just like ListenAndServe, but wraps the connection with TLS.
func (srv *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return errors.Wrap(err, "Load X.509 key pair")
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	if srv.TLSConfig == nil {
		return errors.New("No TLSConfig set in server, and no certFile/keyFile given")
	}

	listener, err := tls.Listen("tcp", addr, srv.TLSConfig)
	if err != nil {
		return errors.Wrap(err, "Listen TLS")
	}
	defer listener.Close()

	srv.initOnce.Do(srv.init)
	srv.Log.WithFields(logrus.Fields{
		"addr":        addr,
		"path":        srv.Path,
		"tls_enabled": true,
	}).Info("Listening for incoming connections")
	return srv.Serve(listener)
}

// Serve serves viewers on listener until it fails.
func (srv *Server) Serve(listener net.Listener) error {
	srv.initOnce.Do(srv.init)
	srv.Log.WithFields(logrus.Fields{
		"time_between_pings":  srv.TimeBetweenPings,
		"pings_until_timeout": srv.PingsUntilTimeout,
	}).Info("Server started")

	mux := http.NewServeMux()
	mux.Handle(srv.Path, srv)
	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return errors.Wrap(httpSrv.Serve(listener), "Serve")
}

// ServeHTTP upgrades a request to a WebSocket, and serves the viewer until it disconnects.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.initOnce.Do(srv.init)
	if srv.Source == nil {
		http.Error(w, "no sample source configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		srv.Log.WithFields(logrus.Fields{
			"error": err,
			"addr":  r.RemoteAddr,
		}).Warn("Cannot upgrade connection")
		return
	}

	remoteAddr, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteAddr = r.RemoteAddr
	}
	srv.serveClient(conn, srv.nextID.Add(1), getHostFromAddrIfPossible(remoteAddr))
}

// Stats gets stats for this server.
func (srv *Server) Stats() model.ServerStats {
	srv.initOnce.Do(srv.init)
	return srv.registry.Stats()
}

// deadline is how long a client may stay silent before it is dropped. 0 means forever.
// The last ping gets half an interval to be answered.
func (srv *Server) deadline() time.Duration {
	if srv.TimeBetweenPings <= 0 || srv.PingsUntilTimeout <= 0 {
		return 0
	}
	return srv.TimeBetweenPings*time.Duration(srv.PingsUntilTimeout) + srv.TimeBetweenPings/2
}

// getHostFromAddrIfPossible tries to get the reverse dns host for an address.
// If that isn't possible, it just returns the address.
func getHostFromAddrIfPossible(addr string) string {
	var hosts string
	names, err := net.LookupAddr(addr)
	if err == nil { // No need to report errors; just fallback to IP
		hosts = strings.Join(names, ", ")
	}

	if hosts == "" {
		return addr
	}

	return fmt.Sprintf("%s (%s)", hosts, addr)
}
