// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/n0ot/daqstreamd/pkg/frame"
	"github.com/n0ot/daqstreamd/pkg/model"
)

var (
	watchFrames     int
	watchUpdateRate float64
	watchSendCap    int
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [host]",
	Short: "Stream from a daqstreamd server, and print a line per frame",
	Long: `watch connects to a daqstreamd server, starts streaming,
and prints a summary of each frame it receives until interrupted.

If the host is omitted, the local daqstreamd server will be watched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := "127.0.0.1"
		if len(args) > 0 {
			host = args[0]
		} else {
			useLocalServerConfig()
		}
		return watch(host, os.Stdout)
	},
}

func init() {
	RootCmd.AddCommand(watchCmd)
	addDialFlags(watchCmd)
	watchCmd.Flags().IntVarP(&watchFrames, "frames", "f", 0, "stop after this many frames (0 watches until interrupted)")
	watchCmd.Flags().Float64VarP(&watchUpdateRate, "update-rate", "r", 0, "ask the server for this update rate in Hz")
	watchCmd.Flags().IntVar(&watchSendCap, "send-cap", 0, "ask the server for this many samples per channel per frame at most")
}

func watch(host string, out io.Writer) error {
	conn, err := dialServer(host)
	if err != nil {
		return err
	}
	defer conn.Close()

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	defer signal.Stop(interrupted)
	go func() {
		if _, ok := <-interrupted; ok {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "interrupted"),
				time.Now().Add(time.Second))
			conn.Close()
		}
	}()

	requests := []model.Message{}
	if watchUpdateRate > 0 {
		requests = append(requests, model.SetUpdateRateMessage{
			DefaultMessage: model.DefaultMessage{Type: "set_update_rate"},
			Hz:             watchUpdateRate,
		})
	}
	if watchSendCap > 0 {
		requests = append(requests, model.SetSendCapMessage{
			DefaultMessage: model.DefaultMessage{Type: "set_send_cap"},
			Cap:            watchSendCap,
		})
	}
	requests = append(requests, model.DefaultMessage{Type: "start"})
	for _, req := range requests {
		if err := conn.WriteJSON(req); err != nil {
			return errors.Wrapf(err, "Send %s", req.Message())
		}
	}

	var summary watchSummary
	summary.start = time.Now()
	defer func() { summary.print(out) }()
	for watchFrames == 0 || summary.frames < watchFrames {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return errors.Wrap(err, "Read from server")
		}

		if kind == websocket.BinaryMessage {
			f, err := frame.Decode(raw)
			if err != nil {
				return errors.Wrap(err, "Decode frame")
			}
			summary.add(f, len(raw))
			fmt.Fprintln(out, describeFrame(f))
			continue
		}

		msg, err := decodeServerMessage(raw)
		if err != nil {
			return errors.Wrap(err, "Decode message from server")
		}
		switch msg := msg.(type) {
		case *model.MOTDMessage:
			fmt.Fprintf(out, "MOTD: %s\n", msg.MOTD)
		case *model.SessionMessage:
			fmt.Fprintf(out, "Session %s: channels %s, %.1f Hz, send cap %d\n",
				msg.ID, strings.Join(msg.Channels, ", "), msg.Config.UpdateRate, msg.Config.SendCap)
		case *model.ConfigMessage:
			fmt.Fprintf(out, "Config: %.1f Hz, send cap %d\n", msg.Config.UpdateRate, msg.Config.SendCap)
		case *model.ErrorMessage:
			return errors.Errorf("Server returned an error: %s", msg.Error)
		}
	}

	conn.WriteJSON(model.DefaultMessage{Type: "stop"})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}

// describeFrame summarizes a frame in one line: its time, and each channel's sample count and newest value.
func describeFrame(f *frame.Frame) string {
	var b strings.Builder
	b.WriteString(f.Time().Format("15:04:05.000"))
	for _, ch := range f.Channels {
		fmt.Fprintf(&b, "  %s[%d]", ch.Name, len(ch.Samples))
		if n := len(ch.Samples); n > 0 {
			fmt.Fprintf(&b, "=%.4f", ch.Samples[n-1])
		}
	}
	return b.String()
}

type watchSummary struct {
	start   time.Time
	frames  int
	bytes   int
	samples int
}

func (s *watchSummary) add(f *frame.Frame, size int) {
	s.frames++
	s.bytes += size
	for _, ch := range f.Channels {
		s.samples += len(ch.Samples)
	}
}

func (s *watchSummary) print(out io.Writer) {
	elapsed := time.Since(s.start)
	fmt.Fprintf(out, "\n%d frames, %d samples, %d bytes in %s", s.frames, s.samples, s.bytes, elapsed.Round(time.Millisecond))
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(out, " (%.1f frames/s)", float64(s.frames)/secs)
	}
	fmt.Fprintln(out)
}
