// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/n0ot/daqstreamd/pkg/daqstream"
	"github.com/n0ot/daqstreamd/pkg/mqttsink"
	"github.com/n0ot/daqstreamd/pkg/server"
	"github.com/n0ot/daqstreamd/pkg/source"
)

var (
	log        *logrus.Logger
	motd       string
	disableTLS bool
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the daqstreamd server",
	RunE:  runServer,
}

func init() {
	RootCmd.AddCommand(startCmd)

	startCmd.Flags().StringP("bind", "b", "127.0.0.1:8765", "Bind the server to host:port. Leave host empty to bind to all interfaces.")
	viper.BindPFlag("server.bind", startCmd.Flags().Lookup("bind"))
	startCmd.Flags().String("path", "/", "URL path viewers connect to")
	viper.BindPFlag("server.path", startCmd.Flags().Lookup("path"))
	startCmd.Flags().IntP("time-between-pings", "t", 30, "How often pings should be sent in seconds (0 disables)")
	viper.BindPFlag("server.timeBetweenPings", startCmd.Flags().Lookup("time-between-pings"))
	startCmd.Flags().IntP("pings-until-timeout", "p", 2, "Number of pings that can pass before inactive clients are dropped (0 disables timeout)")
	viper.BindPFlag("server.pingsUntilTimeout", startCmd.Flags().Lookup("pings-until-timeout"))
	startCmd.Flags().BoolVarP(&disableTLS, "disable-tls", "d", false, "Overrides config option to enable TLS")

	startCmd.Flags().Float64P("update-rate", "r", daqstream.DefaultUpdateRate, "How many times per second samples are read and sent")
	viper.BindPFlag("stream.updateRate", startCmd.Flags().Lookup("update-rate"))
	startCmd.Flags().Int("send-cap", daqstream.DefaultSendCap, "Maximum samples per channel in one frame")
	viper.BindPFlag("stream.sendCap", startCmd.Flags().Lookup("send-cap"))
	startCmd.Flags().Int("samples-per-read", daqstream.DefaultSamplesPerRead, "Samples per channel read from the source each cycle")
	viper.BindPFlag("stream.samplesPerRead", startCmd.Flags().Lookup("samples-per-read"))
	startCmd.Flags().Int("buffer-size", daqstream.DefaultBufferSize, "Samples kept per channel")
	viper.BindPFlag("stream.bufferSize", startCmd.Flags().Lookup("buffer-size"))

	startCmd.Flags().StringSlice("channels", []string{"ai0", "ai1", "ai2", "ai3"}, "Names of the simulated source's channels")
	viper.BindPFlag("source.channels", startCmd.Flags().Lookup("channels"))
	startCmd.Flags().Float64("sample-rate", 1000, "Simulated source sample rate in Hz")
	viper.BindPFlag("source.sampleRate", startCmd.Flags().Lookup("sample-rate"))

	startCmd.Flags().String("mqtt-broker", "", "Also stream to this MQTT broker, such as tcp://localhost:1883")
	viper.BindPFlag("mqtt.broker", startCmd.Flags().Lookup("mqtt-broker"))

	viper.SetDefault("server.statsPassword", "")
	viper.SetDefault("tls.useTls", false)
	viper.SetDefault("stream.readTimeout", daqstream.DefaultReadTimeout)
	viper.SetDefault("source.noise", 0.1)
	viper.SetDefault("source.paced", true)
	viper.SetDefault("mqtt.topic", "daqstreamd/frames")
	viper.SetDefault("mqtt.clientId", "daqstreamd")
}

func runServer(cmd *cobra.Command, args []string) error {
	var err error
	log, err = newLogger(viper.GetString("log.level"), viper.GetString("log.format"), os.Stderr)
	if err != nil {
		return err
	}

	motdFile := os.ExpandEnv(viper.GetString("daqstreamd.motdFile"))
	if motdBuf, err := os.ReadFile(motdFile); err == nil {
		motd = string(motdBuf)
	}

	sessionOptions := []daqstream.Option{
		daqstream.WithUpdateRate(viper.GetFloat64("stream.updateRate")),
		daqstream.WithSendCap(viper.GetInt("stream.sendCap")),
		daqstream.WithSamplesPerRead(viper.GetInt("stream.samplesPerRead")),
		daqstream.WithBufferSize(viper.GetInt("stream.bufferSize")),
		daqstream.WithReadTimeout(viper.GetDuration("stream.readTimeout")),
	}

	if broker := viper.GetString("mqtt.broker"); broker != "" {
		session, err := startMQTTSession(broker, sessionOptions)
		if err != nil {
			return err
		}
		defer session.Stop()
	}

	srv := &server.Server{
		TimeBetweenPings:  viper.GetDuration("server.timeBetweenPings") * time.Second,
		PingsUntilTimeout: viper.GetInt("server.pingsUntilTimeout"),
		MOTD:              strings.TrimSpace(motd),
		StatsPassword:     viper.GetString("server.statsPassword"),
		Path:              viper.GetString("server.path"),
		Source:            simulatedSourceFactory,
		SessionOptions:    sessionOptions,
		Log:               log,
	}

	bindAddr := viper.GetString("server.bind")
	certFile := os.ExpandEnv(viper.GetString("tls.certFile"))
	keyFile := os.ExpandEnv(viper.GetString("tls.keyFile"))
	useTLS := viper.GetBool("tls.useTls")

	log.Info("Starting daqstreamd")
	if useTLS && !disableTLS {
		return srv.ListenAndServeTLS(bindAddr, certFile, keyFile)
	}
	return srv.ListenAndServe(bindAddr)
}

// simulatedSourceFactory opens a simulated source configured from viper.
func simulatedSourceFactory() (source.SampleSource, error) {
	sim := source.NewSimulated(log)
	sim.Noise = viper.GetFloat64("source.noise")
	sim.Paced = viper.GetBool("source.paced")
	if err := sim.Initialize(viper.GetStringSlice("source.channels"), viper.GetFloat64("source.sampleRate")); err != nil {
		return nil, errors.Wrap(err, "Initialize simulated source")
	}
	return sim, nil
}

// startMQTTSession streams a session of its own to an MQTT topic for as long as the server runs.
func startMQTTSession(broker string, opts []daqstream.Option) (*daqstream.Session, error) {
	client, err := mqttsink.Connect(broker, viper.GetString("mqtt.clientId"), log)
	if err != nil {
		return nil, err
	}
	src, err := simulatedSourceFactory()
	if err != nil {
		return nil, err
	}

	topic := viper.GetString("mqtt.topic")
	sessionLog := log.WithFields(logrus.Fields{
		"broker": broker,
		"topic":  topic,
	})
	opts = append([]daqstream.Option{daqstream.WithLogger(sessionLog)}, opts...)
	session, err := daqstream.NewSession(src, mqttsink.New(client, topic), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "Create MQTT session")
	}
	if err := session.Start(); err != nil {
		return nil, errors.Wrap(err, "Start MQTT session")
	}

	// Keep publishing through broker outages; the client reconnects on its own.
	go func() {
		for err := range session.Errors() {
			sessionLog.WithFields(logrus.Fields{
				"error": err,
			}).Debug("MQTT publish failed")
		}
	}()
	sessionLog.Info("Streaming to MQTT")
	return session, nil
}
