// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package tinyproto

import (
	"fmt"
	"sync/atomic"
)

// Ack is the content of the reserved ACK telemetry channel. It is updated
// from interrupt context and read from the main loop, so it is stored as a
// single atomic word.
type Ack struct {
	word atomic.Uint32
}

// AckPacket is a point-in-time copy of the ACK channel.
type AckPacket struct {
	LastCommand byte
	Result      AckResult
}

// Record stores the last command byte and its result.
func (a *Ack) Record(command byte, result AckResult) {
	a.word.Store(uint32(command)<<8 | uint32(result))
}

// SetResult updates the result, keeping the last command byte.
func (a *Ack) SetResult(result AckResult) {
	for {
		old := a.word.Load()
		if a.word.CompareAndSwap(old, old&^0xFF|uint32(result)) {
			return
		}
	}
}

// Load returns the current ACK packet.
func (a *Ack) Load() AckPacket {
	w := a.word.Load()
	return AckPacket{LastCommand: byte(w >> 8), Result: AckResult(w)}
}

// Bytes returns the wire form of the ACK packet.
func (p AckPacket) Bytes() []byte {
	return []byte{p.LastCommand, byte(p.Result)}
}

// ParseAck decodes the wire form of an ACK packet.
func ParseAck(data []byte) (AckPacket, error) {
	if len(data) != AckSize {
		return AckPacket{}, fmt.Errorf("ack: expected %d bytes, got %d", AckSize, len(data))
	}
	return AckPacket{LastCommand: data[0], Result: AckResult(data[1])}, nil
}

// String returns the result name
func (r AckResult) String() string {
	switch r {
	case AckReceived:
		return "RECEIVED"
	case AckProcessing:
		return "PROCESSING"
	case AckCompleted:
		return "COMPLETED"
	case AckOverflow:
		return "EOVERFLOW"
	case AckInvalidCRC:
		return "EINVALID_CRC"
	case AckInvalidTelemetryReq:
		return "EINVALID_TLM_REQ"
	case AckInvalidTelecommand:
		return "EINVALID_TC"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(r))
	}
}

// IsError reports whether the result is a rejection.
func (r AckResult) IsError() bool {
	return r >= AckOverflow
}
