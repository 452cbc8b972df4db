// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/Thermoquad/pdslink/pkg/board"
	"github.com/Thermoquad/pdslink/pkg/obc"
)

var (
	statusClear   bool
	healthTag     string
	resetPin      string
	resetPulse    time.Duration
	echoHex       bool
	telemetrySize int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the board's sticky status flags",
	Args:  cobra.NoArgs,
	RunE: withClient(func(c *obc.Client, args []string) error {
		st, err := c.SystemStatus(statusClear, 0)
		if err != nil {
			return err
		}
		fmt.Println(st)
		return nil
	}),
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run HEALTH_CHECK (plain protocol only)",
	Args:  cobra.NoArgs,
	RunE: withClient(func(c *obc.Client, args []string) error {
		tag, err := parseBytes(healthTag)
		if err != nil || len(tag) != board.HealthCheckArgLen {
			return fmt.Errorf("--tag must be %d hex bytes", board.HealthCheckArgLen)
		}
		h, err := c.HealthCheck([2]byte{tag[0], tag[1]})
		if err != nil {
			return err
		}
		fmt.Println(h)
		return nil
	}),
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot the board",
	Long: `Send the REBOOT command with its key. The board resets once the
response has been read.

With --reset-pin the board is reset by pulsing a host GPIO wired to its
reset line instead (active low).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetPin != "" {
			return pulseReset(resetPin, resetPulse)
		}
		return withClient(func(c *obc.Client, args []string) error {
			ok, err := c.Reboot()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("reboot refused")
			}
			fmt.Println("reboot accepted")
			return nil
		})(cmd, args)
	},
}

var converterCmd = &cobra.Command{
	Use:   "converter <channel>...",
	Short: "Sample converter channels",
	Args:  cobra.MinimumNArgs(1),
	RunE: withClient(func(c *obc.Client, args []string) error {
		for _, a := range args {
			ch, err := parseByte(a)
			if err != nil {
				return err
			}
			r, err := c.Converter(ch)
			if err != nil {
				return err
			}
			fmt.Println(r)
		}
		return nil
	}),
}

var ackCmd = &cobra.Command{
	Use:   "ack",
	Short: "Report the last command the board handled",
	Args:  cobra.NoArgs,
	RunE: withClient(func(c *obc.Client, args []string) error {
		ack, err := c.TelecommandAck()
		if err != nil {
			return err
		}
		fmt.Printf("last=0x%02X result=%s\n", ack.LastCommand, ack.Result)
		return nil
	}),
}

var echoCmd = &cobra.Command{
	Use:   "echo <text>",
	Short: "Send up to 10 bytes and print what comes back",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(c *obc.Client, args []string) error {
		payload := []byte(args[0])
		if echoHex {
			var err error
			if payload, err = parseBytes(args[0]); err != nil {
				return err
			}
		}
		got, err := c.Echo(payload)
		if err != nil {
			return err
		}
		fmt.Printf("% X  %q\n", got, strings.TrimRight(string(got), "\x00"))
		return nil
	}),
}

var telecommandCmd = &cobra.Command{
	Use:   "telecommand <id> [payload-hex]",
	Short: "Send a raw framed telecommand",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withClient(func(c *obc.Client, args []string) error {
		id, err := parseByte(args[0])
		if err != nil {
			return err
		}
		var payload []byte
		if len(args) > 1 {
			if payload, err = parseBytes(args[1]); err != nil {
				return err
			}
		}
		if err := c.Telecommand(id, payload); err != nil {
			return err
		}
		ack, err := c.TelecommandAck()
		if err != nil {
			return err
		}
		fmt.Printf("telecommand 0x%02X: %s\n", id, ack.Result)
		return nil
	}),
}

var telemetryCmd = &cobra.Command{
	Use:   "telemetry <channel>",
	Short: "Read a raw framed telemetry channel",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(c *obc.Client, args []string) error {
		ch, err := parseByte(args[0])
		if err != nil {
			return err
		}
		size := telemetrySize
		if size < 0 {
			d, ok := c.Commands().Lookup(ch)
			if !ok {
				return fmt.Errorf("channel 0x%02X: unknown size, pass --size", ch)
			}
			size = d.ResponseLength
		}
		content, err := c.Telemetry(ch, size)
		if err != nil {
			return err
		}
		fmt.Printf("channel 0x%02X: % X\n", ch, content)
		return nil
	}),
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send the framed PING telecommand",
	Args:  cobra.NoArgs,
	RunE: withClient(func(c *obc.Client, args []string) error {
		start := time.Now()
		if err := c.Ping(); err != nil {
			return err
		}
		fmt.Printf("pong from 0x%02X in %s\n", boardAddr, time.Since(start).Round(time.Microsecond))
		return nil
	}),
}

func init() {
	statusCmd.Flags().BoolVar(&statusClear, "clear", false, "Clear the flags after reading them")
	healthCmd.Flags().StringVar(&healthTag, "tag", "0000", "Two tag bytes echoed back, hex")
	rebootCmd.Flags().StringVar(&resetPin, "reset-pin", "", "Host GPIO wired to the board reset line")
	rebootCmd.Flags().DurationVar(&resetPulse, "pulse", 10*time.Millisecond, "Reset pulse width")
	echoCmd.Flags().BoolVar(&echoHex, "hex", false, "Payload is hex")
	telemetryCmd.Flags().IntVar(&telemetrySize, "size", -1, "Channel content size (default from the command table)")

	rootCmd.AddCommand(statusCmd, healthCmd, rebootCmd, converterCmd, ackCmd, echoCmd,
		telecommandCmd, telemetryCmd, pingCmd)
}

// withClient opens the selected bus around fn
func withClient(fn func(c *obc.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, bus, _, err := openClient()
		if err != nil {
			return err
		}
		defer bus.Close()
		return fn(c, args)
	}
}

// pulseReset drives the reset line low for width
func pulseReset(name string, width time.Duration) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return fmt.Errorf("no GPIO named %q", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	time.Sleep(width)
	if err := p.Out(gpio.High); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	fmt.Printf("pulsed %s low for %s\n", p, width)
	return nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q: %w", s, err)
	}
	return byte(v), nil
}

// parseBytes accepts hex with optional spaces, colons or a 0x prefix
func parseBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}
