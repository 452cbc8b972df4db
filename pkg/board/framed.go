// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"fmt"

	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

// Framed binds the command table to the framed protocol. Every command that
// is not PlainOnly becomes a telecommand (payload stored as its arguments)
// and a telemetry channel (its response buffer).
type Framed struct {
	reg   *tinyproto.Registry
	table *CommandTable
	board *Board

	args [tinyproto.MaxCommandID + 1][]byte
	resp [tinyproto.MaxCommandID + 1][]byte

	// actions run here first; a channel only sees successful results
	stageArgs [BufferSize]byte
	stageResp [BufferSize]byte
}

var _ Protocol = (*Framed)(nil)

// NewFramed registers the table with a fresh registry. Any registration
// failure aborts.
func NewFramed(table *CommandTable, b *Board) (*Framed, error) {
	f := &Framed{
		reg:   tinyproto.NewRegistry(),
		table: table,
		board: b,
	}
	for _, d := range table.All() {
		if d.PlainOnly {
			continue
		}
		if err := f.reg.RegisterTelecommand(d.ID, d.PayloadLength); err != nil {
			return nil, fmt.Errorf("binding %s: %w", d.Name, err)
		}
		f.args[d.ID] = make([]byte, d.PayloadLength)
		f.resp[d.ID] = make([]byte, d.ResponseLength)
		if err := f.reg.RegisterTelemetryChannel(d.ID, f.resp[d.ID]); err != nil {
			return nil, fmt.Errorf("binding %s: %w", d.Name, err)
		}
	}
	return f, nil
}

// Registry returns the underlying registry.
func (f *Framed) Registry() *tinyproto.Registry {
	return f.reg
}

func (f *Framed) Magic() (byte, bool) {
	return tinyproto.Magic, true
}

func (f *Framed) OnCommandByte(selector byte) (int, error) {
	n, err := f.reg.Begin(selector)
	if err != nil && !tinyproto.IsTelemetry(selector) {
		f.board.telecommands.Record(selector, tinyproto.AckInvalidTelecommand)
	}
	return n, err
}

func (f *Framed) OnPayloadComplete(cmd Command, resp []byte) (int, error) {
	frame, err := f.reg.Finish(cmd.ID, cmd.Payload)
	if err != nil {
		if !tinyproto.IsTelemetry(cmd.ID) {
			f.board.telecommands.Record(cmd.ID, tinyproto.AckInvalidCRC)
		}
		return 0, err
	}
	if frame.IsTelemetry() {
		return f.telemetry(frame.ID(), resp)
	}
	return 0, f.telecommand(frame.ID(), frame.Payload)
}

// telecommand stores the payload and runs the action. Telecommands produce
// no immediate response; results are read back as telemetry.
func (f *Framed) telecommand(id byte, payload []byte) error {
	ack := &f.board.telecommands
	if id == tinyproto.TelecommandPing {
		ack.Record(id, tinyproto.AckCompleted)
		f.reg.Complete()
		return nil
	}

	d, ok := f.table.Lookup(id)
	if !ok {
		ack.Record(id, tinyproto.AckInvalidTelecommand)
		return fmt.Errorf("telecommand 0x%02X: %w", id, ErrUnknownCommand)
	}
	if !d.NoAck {
		ack.Record(id, tinyproto.AckProcessing)
	}
	if err := f.runStaged(d, payload); err != nil {
		if !d.NoAck {
			ack.SetResult(tinyproto.AckInvalidTelecommand)
		}
		return err
	}
	if !d.NoAck {
		ack.SetResult(tinyproto.AckCompleted)
	}
	f.reg.Complete()
	return nil
}

// runStaged runs the action on scratch buffers and commits its arguments and
// response to the channel only when it succeeds. A rejected telecommand
// leaves the last good result readable.
func (f *Framed) runStaged(d *CommandDescriptor, args []byte) error {
	staged := f.stageArgs[:len(f.args[d.ID])]
	clear(staged)
	copy(staged, args)
	out := f.stageResp[:len(f.resp[d.ID])]
	if err := f.table.run(f.board, d, staged, out); err != nil {
		return err
	}
	copy(f.args[d.ID], staged)
	copy(f.resp[d.ID], out)
	return nil
}

// telemetry refreshes the channel from its last arguments, unless the
// command has side effects, and copies content plus CRC into resp.
func (f *Framed) telemetry(ch byte, resp []byte) (int, error) {
	if d, ok := f.table.Lookup(ch); ok && !d.SideEffect {
		if err := f.runStaged(d, f.args[ch]); err != nil {
			return 0, err
		}
	}

	reader := f.reg.Reader()
	if err := reader.Select(ch); err != nil {
		return 0, err
	}
	n, err := reader.ReadAll(resp)
	if err != nil {
		return 0, err
	}
	f.reg.Complete()
	return n, nil
}
