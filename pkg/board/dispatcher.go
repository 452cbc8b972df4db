// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"fmt"

	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

// Action handles one command. args holds exactly PayloadLength bytes and
// resp exactly ResponseLength bytes, zeroed. Actions run in the main loop and
// must not block.
type Action func(b *Board, args, resp []byte) error

// CommandDescriptor describes one supported command.
type CommandDescriptor struct {
	ID             byte
	Name           string
	PayloadLength  int
	ResponseLength int
	State          State
	Action         Action

	// PlainOnly commands are not bound to the framed protocol, usually
	// because the response does not fit in one frame.
	PlainOnly bool
	// SideEffect commands are not re-run by a framed telemetry request;
	// the request returns the response of the last telecommand instead.
	SideEffect bool
	// NoAck commands leave the telecommand ACK untouched.
	NoAck bool
}

// CommandTable is the immutable set of commands, indexed by id.
type CommandTable struct {
	byID  [256]*CommandDescriptor
	order []*CommandDescriptor
}

// NewCommandTable builds a table. Duplicate ids and oversized buffers are
// rejected.
func NewCommandTable(descs ...CommandDescriptor) (*CommandTable, error) {
	t := &CommandTable{}
	for i := range descs {
		d := descs[i]
		switch {
		case t.byID[d.ID] != nil:
			return nil, fmt.Errorf("command 0x%02X (%s): %w", d.ID, d.Name, ErrDuplicateCommand)
		case d.Action == nil:
			return nil, fmt.Errorf("command 0x%02X (%s): %w", d.ID, d.Name, ErrMissingAction)
		case d.PayloadLength < 0 || d.PayloadLength > BufferSize:
			return nil, fmt.Errorf("command 0x%02X (%s): payload %d: %w", d.ID, d.Name, d.PayloadLength, ErrBufferOverflow)
		case d.ResponseLength < 0 || d.ResponseLength > BufferSize:
			return nil, fmt.Errorf("command 0x%02X (%s): response %d: %w", d.ID, d.Name, d.ResponseLength, ErrResponseTooLarge)
		}
		if d.State == StateIdle {
			d.State = StateBusy
		}
		t.byID[d.ID] = &d
		t.order = append(t.order, &d)
	}
	return t, nil
}

// Lookup returns the descriptor for id.
func (t *CommandTable) Lookup(id byte) (*CommandDescriptor, bool) {
	d := t.byID[id]
	return d, d != nil
}

// All returns the descriptors in registration order.
func (t *CommandTable) All() []CommandDescriptor {
	out := make([]CommandDescriptor, len(t.order))
	for i, d := range t.order {
		out[i] = *d
	}
	return out
}

// Names returns the display names keyed by id.
func (t *CommandTable) Names() tinyproto.Names {
	names := make(tinyproto.Names, len(t.order))
	for _, d := range t.order {
		names[d.ID] = d.Name
	}
	return names
}

// run invokes the action with length-checked buffers.
func (t *CommandTable) run(b *Board, d *CommandDescriptor, args, resp []byte) error {
	if len(args) != d.PayloadLength {
		return fmt.Errorf("command 0x%02X: %d payload bytes, want %d: %w",
			d.ID, len(args), d.PayloadLength, ErrInvalidPayloadLength)
	}
	if len(resp) < d.ResponseLength {
		return fmt.Errorf("command 0x%02X: %w", d.ID, ErrResponseTooLarge)
	}
	resp = resp[:d.ResponseLength]
	clear(resp)
	if err := d.Action(b, args, resp); err != nil {
		return fmt.Errorf("%s: %w: %w", d.Name, ErrActionFailed, err)
	}
	return nil
}

// Dispatcher is the plain protocol: a command byte followed by a fixed
// length payload, answered by a fixed length response.
type Dispatcher struct {
	table *CommandTable
	board *Board
}

var _ Protocol = (*Dispatcher)(nil)

// NewDispatcher binds a table to a board.
func NewDispatcher(table *CommandTable, b *Board) *Dispatcher {
	return &Dispatcher{table: table, board: b}
}

func (d *Dispatcher) Magic() (byte, bool) {
	return 0, false
}

func (d *Dispatcher) OnCommandByte(id byte) (int, error) {
	desc, ok := d.table.Lookup(id)
	if !ok {
		d.board.telecommands.Record(id, tinyproto.AckInvalidTelecommand)
		return 0, fmt.Errorf("command 0x%02X: %w", id, ErrUnknownCommand)
	}
	if !desc.NoAck {
		d.board.telecommands.Record(id, tinyproto.AckReceived)
	}
	return desc.PayloadLength, nil
}

func (d *Dispatcher) OnPayloadComplete(cmd Command, resp []byte) (int, error) {
	desc, ok := d.table.Lookup(cmd.ID)
	if !ok {
		// already rejected by OnCommandByte
		return 0, fmt.Errorf("command 0x%02X: %w", cmd.ID, ErrUnknownCommand)
	}

	ack := &d.board.telecommands
	if !desc.NoAck {
		ack.SetResult(tinyproto.AckProcessing)
	}
	if err := d.table.run(d.board, desc, cmd.Payload, resp); err != nil {
		if !desc.NoAck {
			ack.SetResult(tinyproto.AckInvalidTelecommand)
		}
		return 0, err
	}
	if !desc.NoAck {
		ack.SetResult(tinyproto.AckCompleted)
	}
	return desc.ResponseLength, nil
}
