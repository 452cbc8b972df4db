// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package tinyproto

import (
	"fmt"
)

// Source returns the current content of a telemetry channel. It runs in the
// main loop when the channel is selected for reading.
type Source func() []byte

// channel is one registered telemetry source.
type channel struct {
	source Source
	size   int // content length + 1 for the CRC
}

// Frame is a validated frame as seen by the board.
type Frame struct {
	Selector byte
	Payload  []byte // telecommand payload without the id byte; nil for telemetry
	CRC      byte
}

// ID returns the channel or telecommand id carried by the selector.
func (f Frame) ID() byte {
	return f.Selector & SelectorMask
}

// IsTelemetry reports whether the frame is a telemetry read request.
func (f Frame) IsTelemetry() bool {
	return IsTelemetry(f.Selector)
}

// Registry holds the telecommand sizes and telemetry channels of a board.
// Registration happens once at start-up; afterwards the tables are only read,
// which makes Begin safe to call from interrupt context.
type Registry struct {
	tcSize   [MaxCommandID + 1]uint8 // includes the id byte, 0 = unregistered
	channels [MaxCommandID + 1]channel

	ack    Ack
	reader TelemetryReader
}

// NewRegistry returns a registry with the reserved PING telecommand and ACK
// telemetry channel in place.
func NewRegistry() *Registry {
	r := &Registry{}
	r.tcSize[TelecommandPing] = 1
	r.channels[TelemetryAck] = channel{
		source: func() []byte { return r.ack.Load().Bytes() },
		size:   AckSize + 1,
	}
	r.reader.reg = r
	return r
}

// RegisterTelecommand registers telecommand id with a payload of size bytes.
func (r *Registry) RegisterTelecommand(id byte, size int) error {
	if size < 0 || size > MaxPayloadSize {
		return fmt.Errorf("telecommand 0x%02X: %d bytes: %w", id, size, ErrPayloadTooLarge)
	}
	if id > MaxCommandID {
		return fmt.Errorf("telecommand 0x%02X: %w", id, ErrInvalidCommandID)
	}
	if id < TelecommandReserved || r.tcSize[id] != 0 {
		return fmt.Errorf("telecommand 0x%02X: %w", id, ErrChannelAlreadyRegistered)
	}
	r.tcSize[id] = uint8(size + 1)
	return nil
}

// RegisterTelemetryChannel registers a fixed buffer as the content of channel
// ch. The buffer is read when the channel is selected, so later writes to it
// are visible to the next request.
func (r *Registry) RegisterTelemetryChannel(ch byte, buf []byte) error {
	return r.RegisterTelemetrySource(ch, len(buf), func() []byte { return buf })
}

// RegisterTelemetrySource registers a channel whose content is produced by
// src. size is the content length; src must always return exactly size bytes.
func (r *Registry) RegisterTelemetrySource(ch byte, size int, src Source) error {
	if size < 0 || size > MaxPayloadSize {
		return fmt.Errorf("telemetry channel 0x%02X: %d bytes: %w", ch, size, ErrPayloadTooLarge)
	}
	if ch > MaxCommandID {
		return fmt.Errorf("telemetry channel 0x%02X: %w", ch, ErrInvalidCommandID)
	}
	if ch < TelemetryReserved || r.channels[ch].source != nil {
		return fmt.Errorf("telemetry channel 0x%02X: %w", ch, ErrChannelAlreadyRegistered)
	}
	r.channels[ch] = channel{source: src, size: size + 1}
	return nil
}

// TelecommandSize returns the payload size of a registered telecommand.
func (r *Registry) TelecommandSize(id byte) (int, bool) {
	if id > MaxCommandID || r.tcSize[id] == 0 {
		return 0, false
	}
	return int(r.tcSize[id]) - 1, true
}

// ChannelSize returns the content size of a registered telemetry channel,
// not counting the CRC.
func (r *Registry) ChannelSize(ch byte) (int, bool) {
	if ch > MaxCommandID || r.channels[ch].source == nil {
		return 0, false
	}
	return r.channels[ch].size - 1, true
}

// Ack returns the ACK channel of this registry.
func (r *Registry) Ack() *Ack {
	return &r.ack
}

// Reader returns the telemetry reader of this registry.
func (r *Registry) Reader() *TelemetryReader {
	return &r.reader
}

// Begin is called with the selector byte that follows the magic. It returns
// the number of frame bytes still to come (payload plus CRC). An unknown
// selector is recorded on the ACK channel and returned as an error.
func (r *Registry) Begin(selector byte) (int, error) {
	r.ack.Record(selector, AckReceived)

	id := selector & SelectorMask
	if IsTelemetry(selector) {
		if r.channels[id].source == nil {
			r.ack.SetResult(AckInvalidTelemetryReq)
			return 0, fmt.Errorf("channel 0x%02X: %w", id, ErrInvalidTelemetryChannel)
		}
		return 1, nil
	}

	if r.tcSize[id] == 0 {
		r.ack.SetResult(AckInvalidTelecommand)
		return 0, fmt.Errorf("telecommand 0x%02X: %w", id, ErrInvalidTelecommand)
	}
	// payload (tcSize-1) + CRC
	return int(r.tcSize[id]), nil
}

// Finish validates the frame body collected after a successful Begin. body
// holds the payload followed by the CRC byte. On success the ACK result is
// PROCESSING; the caller reports completion with Complete.
func (r *Registry) Finish(selector byte, body []byte) (Frame, error) {
	id := selector & SelectorMask
	if len(body) == 0 {
		return Frame{}, ErrShortFrame
	}

	var expected byte
	if IsTelemetry(selector) {
		if len(body) != 1 {
			return Frame{}, ErrShortFrame
		}
		expected = crcOf(id)
	} else {
		if len(body) != int(r.tcSize[id]) {
			return Frame{}, ErrShortFrame
		}
		expected = crcUpdate(crcTable[selector^crcInitial], body[:len(body)-1]) ^ crcXorOut
	}

	got := body[len(body)-1]
	if got != expected {
		r.ack.SetResult(AckInvalidCRC)
		return Frame{}, fmt.Errorf("selector 0x%02X: expected 0x%02X, got 0x%02X: %w",
			selector, expected, got, ErrCRCMismatch)
	}

	r.ack.SetResult(AckProcessing)
	f := Frame{Selector: selector, CRC: got}
	if !IsTelemetry(selector) {
		f.Payload = body[:len(body)-1]
	}
	return f, nil
}

// Complete marks the last accepted frame as handled.
func (r *Registry) Complete() {
	r.ack.SetResult(AckCompleted)
}
