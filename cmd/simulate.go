// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pdslink/pkg/board"
	"github.com/Thermoquad/pdslink/pkg/obc"
	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

var (
	simCountdown time.Duration
	simQuiet     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted exchange against a simulated board",
	Long: `Start a simulated board on an in-process I2C bus and drive it through
every command it serves, printing each bus transaction.

The script also sends an unknown command and, in framed mode, a frame with a
bad CRC, so the sticky status flags can be seen being raised and cleared.

Use --framed for the framed protocol and --countdown to watch the start-up
countdown hold the bus off.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().DurationVar(&simCountdown, "countdown", 0, "Start-up countdown before the bus is enabled")
	simulateCmd.Flags().BoolVarP(&simQuiet, "quiet", "q", false, "Only print results, not bus transactions")
}

// simStep is one scripted action
type simStep struct {
	name string
	run  func(c *obc.Client) (string, error)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := simConfig(simCountdown)
	sim, err := startSimBoard(cfg)
	if err != nil {
		return err
	}
	defer sim.stop()

	names := sim.board.Commands().Names()
	trace := newFrameTracer(sim.board.Commands())
	if !simQuiet {
		sim.bus.SetTrace(func(addr uint16, w, r []byte, err error) {
			fmt.Print(trace.format(addr, w, r, err, cfg.Framed))
		})
	}

	fmt.Printf("pdslink - Simulated board %q at 0x%02X (%s protocol)\n", cfg.Name, cfg.Address, variantName(cfg.Framed))
	if cfg.Countdown > 0 {
		fmt.Printf("Countdown: %s\n", cfg.Countdown)
		if err := sim.waitReady(cfg.Countdown + time.Second); err != nil {
			return err
		}
	}
	fmt.Println()

	c := obc.New(sim.bus, &obc.Opts{Addr: cfg.Address, Framed: cfg.Framed}, sim.board.Commands())
	steps := simScript(c, names)

	failures := 0
	for _, step := range steps {
		out, err := step.run(c)
		if err != nil {
			failures++
			fmt.Printf(">> %-16s FAILED: %v\n\n", step.name, err)
			continue
		}
		fmt.Printf(">> %-16s %s\n\n", step.name, out)
	}

	fmt.Print(sim.board.Engine().Snapshot())
	if failures > 0 {
		return fmt.Errorf("%d of %d steps failed", failures, len(steps))
	}
	return nil
}

// simScript lists the steps for the client's protocol variant
func simScript(c *obc.Client, names tinyproto.Names) []simStep {
	steps := []simStep{}
	if c.Framed() {
		steps = append(steps, simStep{"PING", func(c *obc.Client) (string, error) {
			return "ok", c.Ping()
		}})
	} else {
		steps = append(steps, simStep{"HEALTH_CHECK", func(c *obc.Client) (string, error) {
			h, err := c.HealthCheck([2]byte{0xA5, 0x5A})
			return h.String(), err
		}})
	}

	steps = append(steps,
		simStep{"SYSTEM_STATUS", func(c *obc.Client) (string, error) {
			st, err := c.SystemStatus(false, 0x01)
			return st.String(), err
		}},
		simStep{"ECHO", func(c *obc.Client) (string, error) {
			got, err := c.Echo([]byte("pdslink!"))
			return fmt.Sprintf("%q", got), err
		}},
	)
	for ch := range simVoltages {
		steps = append(steps, simStep{fmt.Sprintf("CONVERTER %d", ch), func(c *obc.Client) (string, error) {
			r, err := c.Converter(uint8(ch))
			return r.String(), err
		}})
	}
	steps = append(steps, simStep{"TELECOMMAND_ACK", func(c *obc.Client) (string, error) {
		ack, err := c.TelecommandAck()
		return tinyproto.FormatAck(ack, names), err
	}})

	// provoke a sticky error, then read and clear it
	if c.Framed() {
		steps = append(steps, simStep{"BAD CRC", func(c *obc.Client) (string, error) {
			frame, err := tinyproto.EncodeTelecommand(board.CmdEcho, make([]byte, board.EchoLen))
			if err != nil {
				return "", err
			}
			frame[len(frame)-1] ^= 0xFF
			return "sent", c.Send(frame)
		}})
	} else {
		steps = append(steps, simStep{"UNKNOWN 0x30", func(c *obc.Client) (string, error) {
			return "sent", c.Send([]byte{0x30})
		}})
	}
	steps = append(steps,
		simStep{"STATUS+CLEAR", func(c *obc.Client) (string, error) {
			st, err := c.SystemStatus(true, 0x02)
			return st.String(), err
		}},
		simStep{"SYSTEM_STATUS", func(c *obc.Client) (string, error) {
			st, err := c.SystemStatus(false, 0x03)
			return st.String(), err
		}},
	)
	return steps
}

func variantName(framed bool) string {
	if framed {
		return "framed"
	}
	return "plain"
}
