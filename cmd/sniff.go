// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/pdslink/pkg/board"
	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

var (
	sniffErrorsOnly   bool
	sniffStatsSeconds int
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Decode a raw framed byte stream",
	Long: `Continuously decode framed protocol bytes as they arrive and print each
telecommand and telemetry request with its timestamp.

The stream is whatever the connection carries: a logic analyzer or bus
monitor forwarding SDA bytes over a serial port, or a WebSocket relay.
Frames are checked against the default command table, so unknown selectors
and CRC mismatches are reported as errors.

Use --errors-only to hide valid frames. Statistics are printed every
--stats-interval seconds (0 disables them).`,
	Args: cobra.NoArgs,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().BoolVar(&sniffErrorsOnly, "errors-only", false, "Only display rejected frames")
	sniffCmd.Flags().IntVar(&sniffStatsSeconds, "stats-interval", 10, "Statistics interval in seconds")
}

// mirrorRegistry registers the framed side of a command table so a parser
// can validate frames addressed to the board
func mirrorRegistry(table *board.CommandTable) (*tinyproto.Registry, error) {
	reg := tinyproto.NewRegistry()
	for _, d := range table.All() {
		if d.PlainOnly {
			continue
		}
		if err := reg.RegisterTelecommand(d.ID, d.PayloadLength); err != nil {
			return nil, err
		}
		if err := reg.RegisterTelemetryChannel(d.ID, make([]byte, d.ResponseLength)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// frameTracer renders bus transactions, decoding framed writes
type frameTracer struct {
	parser *tinyproto.Parser
	names  tinyproto.Names
}

func newFrameTracer(table *board.CommandTable) *frameTracer {
	reg, err := mirrorRegistry(table)
	if err != nil {
		// the board accepted the same table
		glog.Errorf("trace: %v", err)
		reg = tinyproto.NewRegistry()
	}
	return &frameTracer{parser: tinyproto.NewParser(reg, nil), names: table.Names()}
}

func (t *frameTracer) format(addr uint16, w, r []byte, txErr error, framed bool) string {
	var sb strings.Builder
	now := time.Now()
	if len(w) > 0 {
		fmt.Fprintf(&sb, "  W 0x%02X: %s\n", addr, tinyproto.FormatHex(w))
		if framed {
			for _, b := range w {
				frame, err := t.parser.ParseByte(b)
				if err != nil {
					fmt.Fprintf(&sb, "    [REJECTED] %v\n", err)
				}
				if frame != nil {
					sb.WriteString("    ")
					sb.WriteString(tinyproto.FormatFrame(frame, now, t.names))
				}
			}
		}
	}
	if len(r) > 0 && txErr == nil {
		fmt.Fprintf(&sb, "  R 0x%02X: %s\n", addr, tinyproto.FormatHex(r))
	}
	if txErr != nil {
		fmt.Fprintf(&sb, "  ! 0x%02X: %v\n", addr, txErr)
	}
	return sb.String()
}

func runSniff(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	table := board.DefaultCommandTable()
	reg, err := mirrorRegistry(table)
	if err != nil {
		return err
	}
	parser := tinyproto.NewParser(reg, nil)
	names := table.Names()
	stats := tinyproto.NewStatistics()

	fmt.Printf("pdslink - Frame Sniffer\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var lastStats time.Time
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			// a closed WebSocket or an unplugged adapter will not come back
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				glog.Infof("connection closed")
				fmt.Print(stats)
				return nil
			}
			glog.Warningf("read error: %v", err)
			continue
		}

		for _, b := range buf[:n] {
			frame, err := parser.ParseByte(b)
			stats.Update(frame, err)
			switch {
			case err != nil:
				fmt.Printf("[%s] \033[1;31mREJECTED:\033[0m %v\n", time.Now().Format("15:04:05.000"), err)
			case frame != nil && !sniffErrorsOnly:
				fmt.Print(tinyproto.FormatFrame(frame, time.Now(), names))
			}
		}
		stats.DiscardedBytes = parser.Discarded()

		if sniffStatsSeconds > 0 && time.Since(lastStats) >= time.Duration(sniffStatsSeconds)*time.Second {
			if !lastStats.IsZero() {
				stats.CalculateRates()
				fmt.Print(stats)
			}
			lastStats = time.Now()
		}
	}
}
