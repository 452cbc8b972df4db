// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/pdslink/pkg/obc"
)

var (
	monitorInterval time.Duration
	monitorChannels int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for polling and commanding a board",
	Long: `Monitor a PDS board through an interactive terminal UI.

The board is polled for its status flags and converter readings at a fixed
interval. The command list on the left sends any command the board serves;
its payload is taken from the hex field (zero padded when empty).

Features:
  - Status flags and converter readings, refreshed every --interval
  - Link statistics (polls, failures, latency)
  - Engine session counters when talking to a simulated board (--sim)
  - Event log of every command and failure

Tab switches between the command list and the payload field. Enter sends.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Poll interval")
	monitorCmd.Flags().IntVar(&monitorChannels, "channels", len(simVoltages), "Converter channels to poll")
}

// boardLink serializes access to the client between polls and commands
type boardLink struct {
	mu sync.Mutex
	c  *obc.Client
}

func (l *boardLink) do(fn func(c *obc.Client) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.c)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	bus, info, sim, err := openBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	link := &boardLink{c: obc.New(bus, &obc.Opts{Addr: boardAddr, Framed: framed}, nil)}
	m := initialMonitorModel(link, info, sim, monitorInterval, monitorChannels)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
