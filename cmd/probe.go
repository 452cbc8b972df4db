// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pdslink/pkg/obc"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Wait until the board answers",
	Long: `Poll the board until it answers a SYSTEM_STATUS query (or a PING in
framed mode) or the timeout expires.

After power-up the board keeps its bus disabled for the start-up countdown,
so this is the way to wait for it to come up in scripts.

Exit codes:
  0 - Board answered before timeout
  1 - Timeout reached without an answer
  2 - Bus error`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for the board")
}

func runProbe(cmd *cobra.Command, args []string) error {
	c, bus, info, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bus error: %v\n", err)
		os.Exit(2)
	}
	defer bus.Close()

	fmt.Printf("pdslink - Board Probe\n")
	fmt.Printf("Bus: %s\n", info)
	fmt.Printf("Board: 0x%02X (%s protocol)\n", boardAddr, variantName(framed))
	fmt.Printf("Timeout: %d seconds\n\n", probeTimeout)

	start := time.Now()
	deadline := start.Add(time.Duration(probeTimeout) * time.Second)
	attempts := 0
	for {
		attempts++
		answer, err := probeOnce(c)
		if err == nil {
			fmt.Printf("SUCCESS: board answered after %s (%d attempts)\n", time.Since(start).Round(time.Millisecond), attempts)
			fmt.Printf("  %s\n", answer)
			return nil
		}
		if time.Now().After(deadline) {
			fmt.Fprintf(os.Stderr, "TIMEOUT: no answer within %d seconds: %v\n", probeTimeout, err)
			bus.Close()
			os.Exit(1)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func probeOnce(c *obc.Client) (string, error) {
	if c.Framed() {
		if err := c.Ping(); err != nil {
			return "", err
		}
	}
	st, err := c.SystemStatus(false, 0)
	if err != nil {
		return "", err
	}
	return st.String(), nil
}
