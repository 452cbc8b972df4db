// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package obc is the bus master side of the PDS link: it sends commands to
// a board over any periph i2c.Bus and collects the responses, for both the
// plain and the framed protocol.
package obc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c"

	"github.com/Thermoquad/pdslink/pkg/board"
	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

var (
	ErrNotReady     = errors.New("obc: board did not answer in time")
	ErrWrongVariant = errors.New("obc: operation not available in this protocol variant")
	ErrUnknown      = errors.New("obc: unknown command")
	ErrBadResponse  = errors.New("obc: malformed response")
)

// Opts configures a Client.
type Opts struct {
	// Addr is the board's 7-bit address.
	Addr uint16
	// Framed selects the framed protocol.
	Framed bool
	// Timeout bounds the wait for a response. The board NACKs reads until
	// its main loop has dispatched the command.
	Timeout time.Duration
	// RetryDelay is the pause between NACKed reads.
	RetryDelay time.Duration
}

// DefaultOpts talks the plain protocol to a board at the default address.
var DefaultOpts = Opts{
	Addr:       board.DefaultAddress,
	Timeout:    500 * time.Millisecond,
	RetryDelay: time.Millisecond,
}

// Client drives one board.
type Client struct {
	d    *i2c.Dev
	opts Opts
	cmds *board.CommandTable
}

// New returns a client for the board at opts.Addr on bus. A nil opts uses
// DefaultOpts. cmds describes the board's command set; nil means the
// default table.
func New(bus i2c.Bus, opts *Opts, cmds *board.CommandTable) *Client {
	o := DefaultOpts
	if opts != nil {
		o = *opts
		if o.Timeout <= 0 {
			o.Timeout = DefaultOpts.Timeout
		}
		if o.RetryDelay <= 0 {
			o.RetryDelay = DefaultOpts.RetryDelay
		}
	}
	if cmds == nil {
		cmds = board.DefaultCommandTable()
	}
	return &Client{d: &i2c.Dev{Bus: bus, Addr: o.Addr}, opts: o, cmds: cmds}
}

func (c *Client) String() string {
	variant := "plain"
	if c.opts.Framed {
		variant = "framed"
	}
	return fmt.Sprintf("obc(%s@0x%02X, %s)", c.d.Bus, c.opts.Addr, variant)
}

// Framed reports the protocol variant.
func (c *Client) Framed() bool {
	return c.opts.Framed
}

// Commands returns the command table the client works from.
func (c *Client) Commands() *board.CommandTable {
	return c.cmds
}

// Command runs one plain command: a write of the command byte and payload,
// then a read of the fixed-size response.
func (c *Client) Command(id byte, args []byte) ([]byte, error) {
	if c.opts.Framed {
		return nil, ErrWrongVariant
	}
	d, ok := c.cmds.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknown, id)
	}
	if len(args) != d.PayloadLength {
		return nil, fmt.Errorf("%s: %d payload bytes, want %d: %w", d.Name, len(args), d.PayloadLength, board.ErrInvalidPayloadLength)
	}

	w := append([]byte{id}, args...)
	if err := c.d.Tx(w, nil); err != nil {
		return nil, fmt.Errorf("%s: write: %w", d.Name, err)
	}
	resp := make([]byte, d.ResponseLength)
	if err := c.readRetry(resp); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	glog.V(1).Infof("obc: %s % X -> % X", d.Name, args, resp)
	return resp, nil
}

// Telecommand sends a framed telecommand and waits until the board has
// dispatched it. Its result is read back through Ack or Telemetry.
func (c *Client) Telecommand(id byte, payload []byte) error {
	if !c.opts.Framed {
		return ErrWrongVariant
	}
	frame, err := tinyproto.EncodeTelecommand(id, payload)
	if err != nil {
		return err
	}
	if err := c.d.Tx(frame, nil); err != nil {
		return fmt.Errorf("telecommand 0x%02X: write: %w", id, err)
	}
	if err := c.settle(); err != nil {
		return fmt.Errorf("telecommand 0x%02X: %w", id, err)
	}
	glog.V(1).Infof("obc: telecommand 0x%02X % X", id, payload)
	return nil
}

// Telemetry requests channel ch and returns its size content bytes after
// checking the CRC.
func (c *Client) Telemetry(ch byte, size int) ([]byte, error) {
	if !c.opts.Framed {
		return nil, ErrWrongVariant
	}
	if size < 0 || size > tinyproto.MaxPayloadSize {
		return nil, fmt.Errorf("channel 0x%02X: %d bytes: %w", ch, size, tinyproto.ErrPayloadTooLarge)
	}
	req, err := tinyproto.EncodeTelemetryRequest(ch)
	if err != nil {
		return nil, err
	}
	if err := c.d.Tx(req, nil); err != nil {
		return nil, fmt.Errorf("telemetry 0x%02X: write: %w", ch, err)
	}
	resp := make([]byte, size+1)
	if err := c.readRetry(resp); err != nil {
		return nil, fmt.Errorf("telemetry 0x%02X: %w", ch, err)
	}
	content, err := tinyproto.DecodeTelemetry(resp)
	if err != nil {
		return nil, fmt.Errorf("telemetry 0x%02X: %w", ch, err)
	}
	glog.V(1).Infof("obc: telemetry 0x%02X -> % X", ch, content)
	return content, nil
}

// Ack reads the framed ACK channel.
func (c *Client) Ack() (tinyproto.AckPacket, error) {
	content, err := c.Telemetry(tinyproto.TelemetryAck, tinyproto.AckSize)
	if err != nil {
		return tinyproto.AckPacket{}, err
	}
	return tinyproto.ParseAck(content)
}

// Ping sends the PING telecommand and checks that the ACK channel answers
// without an error result.
func (c *Client) Ping() error {
	if err := c.Telecommand(tinyproto.TelecommandPing, nil); err != nil {
		return err
	}
	ack, err := c.Ack()
	if err != nil {
		return err
	}
	// the ACK channel names the ACK request itself by the time it is read
	if ack.Result.IsError() {
		return fmt.Errorf("ping: %w: %s", ErrBadResponse, ack.Result)
	}
	return nil
}

// Query runs a command in whichever variant the client speaks. In framed
// mode it sends the telecommand and then reads the command's channel.
func (c *Client) Query(id byte, args []byte) ([]byte, error) {
	if !c.opts.Framed {
		return c.Command(id, args)
	}
	d, ok := c.cmds.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknown, id)
	}
	if d.PlainOnly {
		return nil, fmt.Errorf("%s: %w", d.Name, ErrWrongVariant)
	}
	if err := c.Telecommand(id, args); err != nil {
		return nil, err
	}
	return c.Telemetry(id, d.ResponseLength)
}

// Send writes raw bytes in one transaction and waits for the board to
// finish with them. No response is read.
func (c *Client) Send(w []byte) error {
	if err := c.d.Tx(w, nil); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return c.settle()
}

// readRetry reads into r, retrying while the board NACKs.
func (c *Client) readRetry(r []byte) error {
	deadline := time.Now().Add(c.opts.Timeout)
	for {
		err := c.d.Tx(nil, r)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		glog.V(2).Infof("obc: read retry: %v", err)
		time.Sleep(c.opts.RetryDelay)
	}
}

// settle waits for a command that has no response to leave the board's
// dispatch window. A one-byte read is NACKed until then.
func (c *Client) settle() error {
	var probe [1]byte
	return c.readRetry(probe[:])
}
