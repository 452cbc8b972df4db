// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c"
)

var (
	scanFirst uint16
	scanLast  uint16
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find devices answering on the I2C bus",
	Long: `Probe every 7-bit address in the range with a one-byte read and list the
addresses that acknowledge.

A PDS board with no response armed answers the probe with filler, so the
scan does not disturb it.

Exit codes:
  0 - At least one device found
  1 - No device answered
  2 - Bus error`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Uint16Var(&scanFirst, "first", 0x08, "First address to probe")
	scanCmd.Flags().Uint16Var(&scanLast, "last", 0x77, "Last address to probe")
}

func runScan(cmd *cobra.Command, args []string) error {
	bus, info, _, err := openBus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bus error: %v\n", err)
		os.Exit(2)
	}
	defer bus.Close()

	fmt.Printf("pdslink - Bus Scan\n")
	fmt.Printf("Bus: %s\n", info)
	fmt.Printf("Range: 0x%02X-0x%02X\n\n", scanFirst, scanLast)

	found := scanBus(bus, scanFirst, scanLast)
	for _, addr := range found {
		fmt.Printf("  0x%02X\n", addr)
	}
	if len(found) == 0 {
		fmt.Fprintf(os.Stderr, "No device answered\n")
		bus.Close()
		os.Exit(1)
	}
	fmt.Printf("\nFound %d device(s)\n", len(found))
	return nil
}

// scanBus returns the addresses in [first, last] that ACK a read
func scanBus(bus i2c.Bus, first, last uint16) []uint16 {
	var found []uint16
	var probe [1]byte
	for addr := first; addr <= last && addr <= 0x7F; addr++ {
		if err := bus.Tx(addr, nil, probe[:]); err == nil {
			found = append(found, addr)
		}
	}
	return found
}
