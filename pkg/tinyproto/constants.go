// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package tinyproto implements the framed command protocol spoken between the
// on-board computer and the power distribution board.
//
// A frame is a magic byte, a selector byte and a CRC-8 protected body:
//
//	telecommand:        0x9B | id (bit7=0) | payload (0-11) | CRC(id, payload)
//	telemetry request:  0x9B | ch (bit7=1) | CRC(ch)
//
// The board answers a telemetry request with the registered channel content
// followed by a CRC over that content. The CRC is CRC-8/AUTOSAR.
package tinyproto

// Framing
const (
	Magic        = 0x9B
	SelectorMask = 0x7F
	TelemetryBit = 0x80
)

// Packet size limits
const (
	MaxPacketSize  = 14 // magic + selector + payload + CRC
	MaxPayloadSize = MaxPacketSize - 3
	MaxCommandID   = 127
)

// CRC-8/AUTOSAR configuration
const (
	crcPolynomial = 0x2F
	crcInitial    = 0xFF
	crcXorOut     = 0xFF
)

// Reserved identifiers
const (
	TelecommandPing     = 0x00
	TelecommandReserved = 0x01 // first id available to applications

	TelemetryAck      = 0x00
	TelemetryReserved = 0x01
)

// Parser states (internal)
const (
	stateIdle = iota
	stateExpectSelector
	stateExpectTelemetryCRC
	stateExpectTelecommand
)

// AckResult is the outcome of the last frame, reported on the ACK channel.
type AckResult uint8

// ACK result values
const (
	AckReceived            AckResult = 0
	AckProcessing          AckResult = 1
	AckCompleted           AckResult = 2
	AckOverflow            AckResult = 3
	AckInvalidCRC          AckResult = 4
	AckInvalidTelemetryReq AckResult = 5
	AckInvalidTelecommand  AckResult = 6
)

// AckSize is the length of the ACK channel content (last command, result).
const AckSize = 2

// IsTelemetry reports whether selector addresses a telemetry channel.
func IsTelemetry(selector byte) bool {
	return selector&TelemetryBit != 0
}
