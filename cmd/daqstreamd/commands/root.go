// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgDir string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "daqstreamd",
	Short: "Data acquisition streaming server",
	Long: `daqstreamd samples a multi-channel data source,
and streams the newest samples to viewers over WebSocket.

It can also print usage stats for other daqstreamd servers,
and watch a server's stream from the terminal.

Every config key can also be set from the environment:
stream.updateRate is read from DAQSTREAMD_STREAM_UPDATERATE, and so on.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default is $HOME/.config/daqstreamd)")
	RootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	viper.BindPFlag("log.level", RootCmd.PersistentFlags().Lookup("log-level"))
	viper.SetDefault("log.format", "text")
}

func initConfig() {
	if cfgDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		cfgDir = path.Join(home, ".config", "daqstreamd")
	}

	os.Setenv("CONFDIR", cfgDir)
	if err := loadConfig(viper.GetViper(), cfgDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads daqstreamd.{toml,yaml,json} from dir into v, if there is one,
// and lets DAQSTREAMD_ environment variables override any key.
func loadConfig(v *viper.Viper, dir string) error {
	v.AddConfigPath(dir)
	v.SetConfigName("daqstreamd")
	v.SetEnvPrefix("daqstreamd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return errors.Wrap(err, "Read config")
	}
	return nil
}

// newLogger makes the logger the server and its sessions report to.
func newLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.Out = out

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "Log level")
	}
	log.Level = lvl

	switch format {
	case "", "text":
		log.Formatter = new(logrus.TextFormatter)
	case "json":
		log.Formatter = new(logrus.JSONFormatter)
	default:
		return nil, errors.Errorf("Unknown log format %q", format)
	}
	return log, nil
}
