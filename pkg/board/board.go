// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package board implements the power distribution board firmware: the I2C
// slave byte engine, the command dispatcher for the plain and framed
// protocols, the command actions, and the low-power main loop.
package board

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/pdslink/pkg/hal"
	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

// State is the board (application) state driven by the main loop.
type State uint32

const (
	StateIdle State = iota
	StateCountdown
	StateBusy // command without a dedicated state
	StateSystemStatus
	StateHealthCheck
	StateReboot
	StateConverterMonitor
	StateTelecommandAck
	StateEcho
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCountdown:
		return "Countdown"
	case StateBusy:
		return "Busy"
	case StateSystemStatus:
		return "SystemStatus"
	case StateHealthCheck:
		return "HealthCheck"
	case StateReboot:
		return "Reboot"
	case StateConverterMonitor:
		return "ConverterMonitor"
	case StateTelecommandAck:
		return "TelecommandAck"
	case StateEcho:
		return "Echo"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Board ties the engine, protocol, actions and HAL together.
type Board struct {
	cfg   Config
	hal   hal.HAL
	wake  *hal.Wake
	table *CommandTable

	engine *Engine
	proto  Protocol
	framed *Framed // nil for the plain protocol

	// telecommands is the last command and its outcome, reported by
	// TELECOMMAND_ACK
	telecommands tinyproto.Ack

	state   atomic.Uint32
	handled atomic.Uint64

	// main loop only
	resetPending bool
	resetAt      time.Time
	lastStatus   Status
	resp         [BufferSize]byte
}

// New builds a board. table may be nil for DefaultCommandTable. Failing to
// bind the table to the protocol is fatal.
func New(cfg Config, h hal.HAL, table *CommandTable) (*Board, error) {
	if len(cfg.Name) > HealthNameLen {
		return nil, fmt.Errorf("board name %q longer than %d bytes: %w", cfg.Name, HealthNameLen, ErrInvalidArgument)
	}
	if table == nil {
		table = DefaultCommandTable()
	}

	b := &Board{
		cfg:   cfg,
		hal:   h,
		wake:  hal.NewWake(),
		table: table,
	}
	b.state.Store(uint32(StateCountdown))

	if cfg.Framed {
		f, err := NewFramed(table, b)
		if err != nil {
			return nil, err
		}
		b.framed = f
		b.proto = f
	} else {
		b.proto = NewDispatcher(table, b)
	}
	b.engine = NewEngine(b.proto, b.wake, cfg.TransferTimeout)
	return b, nil
}

// Engine returns the byte engine, the bus-facing side of the board.
func (b *Board) Engine() *Engine {
	return b.engine
}

// Address returns the slave address.
func (b *Board) Address() uint16 {
	return b.cfg.Address
}

// Config returns the board configuration.
func (b *Board) Config() Config {
	return b.cfg
}

// Commands returns the command table.
func (b *Board) Commands() *CommandTable {
	return b.table
}

// Framed returns the framed binding, or nil for the plain protocol.
func (b *Board) Framed() *Framed {
	return b.framed
}

// State returns the current board state.
func (b *Board) State() State {
	return State(b.state.Load())
}

func (b *Board) setState(s State) {
	b.state.Store(uint32(s))
}

// Handled returns the number of commands dispatched successfully.
func (b *Board) Handled() uint64 {
	return b.handled.Load()
}

// LastTelecommand returns what TELECOMMAND_ACK would report.
func (b *Board) LastTelecommand() tinyproto.AckPacket {
	return b.telecommands.Load()
}
