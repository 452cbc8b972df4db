// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"flag"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pdslink/pkg/board"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Bus flags
	busName   string
	boardAddr uint16
	framed    bool
	simulated bool
)

var rootCmd = &cobra.Command{
	Use:   "pdslink",
	Short: "PDS board link tool and simulator",
	Long: `pdslink - talk to a satellite PDS board over I2C, or simulate one.

The board answers fixed-length commands in the plain protocol, or framed
telecommands and telemetry requests (magic 0x9B, CRC-8/AUTOSAR) in the
framed protocol (--framed).

Bus selection, first match wins:
  Simulated: --sim                      in-process board on a simulated bus
  Bridge:    --url ws://host/path       bus served by "pdslink serve"
             --port /dev/ttyUSB0        bus served over a serial line
  Native:    --bus I2C1                 periph.io host bus (default: first bus)

For WebSocket authentication, the password is read from the PDSLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Logging uses glog: -v=1 logs every command, -v=2 every bus transaction.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Bus flags
	rootCmd.PersistentFlags().StringVar(&busName, "bus", "", "periph.io I2C bus name or number")
	rootCmd.PersistentFlags().Uint16Var(&boardAddr, "addr", board.DefaultAddress, "Board 7-bit I2C address")
	rootCmd.PersistentFlags().BoolVar(&framed, "framed", false, "Use the framed protocol")
	rootCmd.PersistentFlags().BoolVar(&simulated, "sim", false, "Talk to an in-process simulated board")

	// glog registers -v, -logtostderr and friends on the standard flag set
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
