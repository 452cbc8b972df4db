// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"fmt"
	"time"
)

// BufferSize is the capacity of each RX bank and of the TX buffer.
const BufferSize = 20

// txFiller is clocked out when the master reads with nothing armed.
const txFiller = 0xFF

// Mode is the transfer session mode.
type Mode uint8

const (
	ModeIdle Mode = iota
	ModeAwaitingCommandByte
	ModeReceivingPayload
	ModeTransmittingPayload
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "Idle"
	case ModeAwaitingCommandByte:
		return "AwaitingCommandByte"
	case ModeReceivingPayload:
		return "ReceivingPayload"
	case ModeTransmittingPayload:
		return "TransmittingPayload"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Command is a completed command handed from the engine to the main loop.
// Payload is a copy owned by the receiver. Gen identifies the transfer the
// command arrived in; its response is only armed while Gen is current.
type Command struct {
	ID      byte
	Payload []byte
	At      time.Time
	Gen     uint64
}

// session is the state shared between interrupt context and the main loop.
// Every field is guarded by Engine.mu.
//
// Ownership: the engine writes rx[active] only. A completed bank is handed
// over by setting ready; the engine then switches to the other bank, and the
// main loop copies the ready bank out in Take. tx is written only by Arm.
type session struct {
	mode Mode

	rx          [2][BufferSize]byte
	active      int
	rxIndex     int
	rxRemaining int
	pendingID   byte

	// gen advances on every command byte
	gen uint64

	ready     bool
	readyID   byte
	readyBank int
	readyLen  int
	readyAt   time.Time
	readyGen  uint64

	// dispatching is set between Take and Arm
	dispatching bool

	tx          [BufferSize]byte
	txLen       int
	txIndex     int
	txRemaining int
	armed       bool

	// drain drops bytes until the next stop after a rejection
	drain bool

	lastActivity time.Time
	status       Status
	counters     Counters
}

// resetRX discards any partially received command.
func (s *session) resetRX() {
	s.rxIndex = 0
	s.rxRemaining = 0
}

// disarm drops the armed response.
func (s *session) disarm() {
	s.armed = false
	s.txLen = 0
	s.txIndex = 0
	s.txRemaining = 0
}

// Snapshot is a copy of the session for monitoring.
type Snapshot struct {
	Mode        Mode
	RxIndex     int
	RxRemaining int
	TxIndex     int
	TxRemaining int
	PendingID   byte
	Armed       bool
	Pending     bool
	Dispatching bool
	Enabled     bool
	Status      Status
	Counters    Counters
}
