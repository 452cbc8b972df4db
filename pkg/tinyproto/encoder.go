// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package tinyproto

import "fmt"

// EncodeTelecommand builds a complete telecommand frame for the bus master.
func EncodeTelecommand(id byte, payload []byte) ([]byte, error) {
	if id > MaxCommandID {
		return nil, fmt.Errorf("telecommand 0x%02X: %w", id, ErrInvalidCommandID)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("telecommand 0x%02X: %d bytes (max %d): %w",
			id, len(payload), MaxPayloadSize, ErrPayloadTooLarge)
	}

	frame := make([]byte, 0, len(payload)+3)
	frame = append(frame, Magic, id)
	frame = append(frame, payload...)
	// CRC covers the id and payload, not the magic
	frame = append(frame, CalculateCRC(frame[1:]))
	return frame, nil
}

// EncodeEmptyTelecommand builds a telecommand frame without payload.
func EncodeEmptyTelecommand(id byte) ([]byte, error) {
	return EncodeTelecommand(id, nil)
}

// EncodePing builds the reserved PING telecommand.
func EncodePing() []byte {
	frame, _ := EncodeEmptyTelecommand(TelecommandPing)
	return frame
}

// EncodeTelemetryRequest builds a read request for channel ch.
func EncodeTelemetryRequest(ch byte) ([]byte, error) {
	if ch > MaxCommandID {
		return nil, fmt.Errorf("telemetry channel 0x%02X: %w", ch, ErrInvalidCommandID)
	}
	return []byte{Magic, ch | TelemetryBit, crcOf(ch)}, nil
}

// DecodeTelemetry checks the trailing CRC of a telemetry response and
// returns the content without it.
func DecodeTelemetry(data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, ErrShortFrame
	}
	content := data[:len(data)-1]
	expected := CalculateCRC(content)
	if got := data[len(data)-1]; got != expected {
		return nil, fmt.Errorf("telemetry: expected 0x%02X, got 0x%02X: %w", expected, got, ErrCRCMismatch)
	}
	return content, nil
}
