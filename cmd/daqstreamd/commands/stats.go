// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/howeyc/gopass"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/n0ot/daqstreamd/pkg/model"
)

const defaultPort = "8765"

var (
	statsPort              string
	statsPath              string
	skipTLSVerification    bool
	statsServerCertificate string
	statsPassword          string
	promptForPassword      bool
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats [host]",
	Short: "Print stats from a daqstreamd server",
	Long: `stats queries a daqstreamd server for running stats.

If the host is omitted, the local daqstreamd server will be queried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := "127.0.0.1"
		if len(args) > 0 {
			host = args[0]
			if disableTLS {
				fmt.Fprintln(os.Stderr, "Warning: TLS is disabled. All traffic including your stats password will be sent in the clear.")
			} else if skipTLSVerification {
				fmt.Fprintln(os.Stderr, "Warning: skipping TLS verification is insecure.")
			}
		} else {
			useLocalServerConfig()
			statsPassword = viper.GetString("server.statsPassword")
		}
		return getStats(host)
	},
}

func init() {
	RootCmd.AddCommand(statsCmd)
	addDialFlags(statsCmd)
	statsCmd.Flags().BoolVarP(&promptForPassword, "prompt-for-password", "p", false, "prompt for the server's stats password\n    If unset, the password is the same as the local server's.")

	viper.SetDefault("server.statsPassword", "")
}

// addDialFlags adds the flags needed to connect to a server.
func addDialFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&statsPort, "port", "P", defaultPort, "port of the server to connect to")
	cmd.Flags().StringVar(&statsPath, "path", "/", "URL path of the server's stream")
	cmd.Flags().BoolVarP(&disableTLS, "disable-tls", "d", false, "disable connecting over TLS")
	cmd.Flags().BoolVarP(&skipTLSVerification, "no-tls-verify", "n", false, "skip TLS verification\n    This is insecure, an attacker can get your password, and you should only use this for testing")
	cmd.Flags().StringVarP(&statsServerCertificate, "server-certificate", "s", "", "file containing the PEM encoded certificate to use for server verification, instead of the system's certificate store")
}

// useLocalServerConfig points the dial flags at the server configured on this machine.
func useLocalServerConfig() {
	if _, port, err := net.SplitHostPort(viper.GetString("server.bind")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot determine local server port from config; using \"%s\"\n", statsPort)
	} else {
		statsPort = port
	}
	if p := viper.GetString("server.path"); p != "" {
		statsPath = p
	}
	disableTLS = !viper.GetBool("tls.useTls")
	skipTLSVerification = true
	if !disableTLS {
		fmt.Fprintln(os.Stderr, "Skipping TLS verification for local server query")
	}
}

// dialServer opens a WebSocket connection to a daqstreamd server.
func dialServer(host string) (*websocket.Conn, error) {
	u := url.URL{
		Scheme: "wss",
		Host:   net.JoinHostPort(host, statsPort),
		Path:   statsPath,
	}
	dialer := *websocket.DefaultDialer
	if disableTLS {
		u.Scheme = "ws"
	} else {
		var certPool *x509.CertPool
		if statsServerCertificate != "" {
			cert, err := os.ReadFile(statsServerCertificate)
			if err != nil {
				return nil, errors.Wrap(err, "Open server certificate")
			}
			certPool = x509.NewCertPool()
			certPool.AppendCertsFromPEM(cert)
		}
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipTLSVerification,
			RootCAs:            certPool,
		}
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "Connect to daqstreamd server")
	}
	return conn, nil
}

// serverMessages maps the types of JSON messages a server sends to values to decode them into.
var serverMessages = map[string]func() model.Message{
	"motd":         func() model.Message { return &model.MOTDMessage{} },
	"error":        func() model.Message { return &model.ErrorMessage{} },
	"session":      func() model.Message { return &model.SessionMessage{} },
	"stats":        func() model.Message { return &model.StatsMessage{} },
	"config":       func() model.Message { return &model.ConfigMessage{} },
	"timing_stats": func() model.Message { return &model.TimingStatsMessage{} },
	"started":      func() model.Message { return &model.DefaultMessage{} },
	"stopped":      func() model.Message { return &model.DefaultMessage{} },
}

// decodeServerMessage decodes a JSON message from a server.
// Unknown messages yield nil.
func decodeServerMessage(raw []byte) (model.Message, error) {
	var unknownMSG model.DefaultMessage
	if err := json.Unmarshal(raw, &unknownMSG); err != nil {
		return nil, err
	}
	newMSG := serverMessages[unknownMSG.Type]
	if newMSG == nil {
		return nil, nil
	}

	msg := newMSG()
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func getStats(statsHost string) error {
	if promptForPassword {
		fmt.Printf("Password: ")
		pass, err := gopass.GetPasswd()
		if err != nil {
			return err
		}
		statsPassword = string(pass)
	}

	if statsPassword == "" {
		statsPassword = os.Getenv("DAQSTREAMD_STATS_PASSWORD")
	}

	if statsPassword == "" {
		return errors.New("A stats password is required")
	}

	conn, err := dialServer(statsHost)
	if err != nil {
		return err
	}
	defer conn.Close()

	err = conn.WriteJSON(model.StatMessage{
		DefaultMessage: model.DefaultMessage{Type: "stat"},
		Password:       statsPassword,
	})
	if err != nil {
		return errors.Wrap(err, "Request stats")
	}

	// A wrong password is answered after a delay.
	conn.SetReadDeadline(time.Now().Add(15 * time.Second))

	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("Connection closed by remote host")
			}
			return errors.Wrap(err, "Get stats response from server")
		}
		if kind != websocket.TextMessage {
			continue
		}
		msg, err := decodeServerMessage(raw)
		if err != nil {
			return errors.Wrap(err, "Get stats response from server")
		}

		switch msg := msg.(type) {
		case *model.MOTDMessage:
			fmt.Printf("MOTD: %s\n\n", msg.MOTD)

		case *model.ErrorMessage:
			return errors.Errorf("Server returned an error: %s", msg.Error)

		case *model.StatsMessage:
			// Don't display the default port in the output.
			friendlyAddr := statsHost
			if statsPort != defaultPort {
				friendlyAddr = net.JoinHostPort(statsHost, statsPort)
			}
			fmt.Printf(`Stats for %s:
Uptime: %s
Number of clients: %d
Max clients: %d on %s

Number of streaming clients: %d
Max streaming clients: %d on %s

Frames sent: %d (%d bytes)
`, friendlyAddr, msg.Stats.Uptime,
				msg.Stats.NumClients,
				msg.Stats.MaxClients, msg.Stats.MaxClientsTime,
				msg.Stats.NumStreaming,
				msg.Stats.MaxStreaming, msg.Stats.MaxStreamingTime,
				msg.Stats.FramesSent, msg.Stats.BytesSent)
			return nil
		}
	}
}
