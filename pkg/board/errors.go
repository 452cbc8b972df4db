// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"errors"
	"strings"

	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

var (
	ErrUnknownCommand       = errors.New("board: unknown command")
	ErrInvalidPayloadLength = errors.New("board: invalid payload length")
	ErrBufferOverflow       = errors.New("board: buffer overflow")
	ErrDuplicateCommand     = errors.New("board: duplicate command id")
	ErrResponseTooLarge     = errors.New("board: response larger than transmit buffer")
	ErrInvalidArgument      = errors.New("board: invalid command argument")
	ErrMissingAction        = errors.New("board: command has no action")
	ErrActionFailed         = errors.New("board: command action failed")
)

// Status is the set of sticky error flags recorded by the engine. Flags stay
// set until cleared by the SYSTEM_STATUS command or a reset.
type Status uint8

const (
	StatusUnknownCommand Status = 1 << iota
	StatusInvalidPayloadLength
	StatusBufferOverflow
	StatusCRCMismatch
	StatusInvalidTelemetryChannel
	StatusOverrun
	StatusTimeout
	StatusActionFailed
)

var statusNames = []struct {
	flag Status
	name string
}{
	{StatusUnknownCommand, "UNKNOWN_COMMAND"},
	{StatusInvalidPayloadLength, "INVALID_PAYLOAD_LENGTH"},
	{StatusBufferOverflow, "BUFFER_OVERFLOW"},
	{StatusCRCMismatch, "CRC_MISMATCH"},
	{StatusInvalidTelemetryChannel, "INVALID_TELEMETRY_CHANNEL"},
	{StatusOverrun, "OVERRUN"},
	{StatusTimeout, "TIMEOUT"},
	{StatusActionFailed, "ACTION_FAILED"},
}

// Has reports whether all bits of f are set.
func (s Status) Has(f Status) bool {
	return s&f == f
}

func (s Status) String() string {
	if s == 0 {
		return "OK"
	}
	var parts []string
	for _, n := range statusNames {
		if s.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// statusFor maps a protocol error to the sticky flag it sets.
func statusFor(err error) Status {
	switch {
	case errors.Is(err, tinyproto.ErrCRCMismatch):
		return StatusCRCMismatch
	case errors.Is(err, tinyproto.ErrInvalidTelemetryChannel):
		return StatusInvalidTelemetryChannel
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, tinyproto.ErrInvalidTelecommand):
		return StatusUnknownCommand
	case errors.Is(err, ErrBufferOverflow), errors.Is(err, tinyproto.ErrPayloadTooLarge):
		return StatusBufferOverflow
	case errors.Is(err, ErrInvalidPayloadLength), errors.Is(err, tinyproto.ErrShortFrame):
		return StatusInvalidPayloadLength
	case errors.Is(err, ErrActionFailed):
		return StatusActionFailed
	default:
		return 0
	}
}
