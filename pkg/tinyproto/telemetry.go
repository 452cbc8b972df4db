// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package tinyproto

import "fmt"

// TelemetryReader streams the content of the selected telemetry channel
// followed by its CRC. Only one channel is active at a time.
type TelemetryReader struct {
	reg      *Registry
	selected bool
	channel  byte
	buf      [MaxPayloadSize + 1]byte
	n        int
	idx      int
}

// Select snapshots the content of channel ch and rewinds the cursor.
func (t *TelemetryReader) Select(ch byte) error {
	size, ok := t.reg.ChannelSize(ch)
	if !ok {
		t.selected = false
		t.reg.ack.Record(ch|TelemetryBit, AckInvalidTelemetryReq)
		return fmt.Errorf("channel 0x%02X: %w", ch, ErrInvalidTelemetryChannel)
	}

	content := t.reg.channels[ch].source()
	if len(content) != size {
		t.selected = false
		return fmt.Errorf("channel 0x%02X: source returned %d bytes, registered %d: %w",
			ch, len(content), size, ErrShortFrame)
	}

	copy(t.buf[:], content)
	t.buf[size] = CalculateCRC(content)
	t.n = size + 1
	t.idx = 0
	t.channel = ch
	t.selected = true
	return nil
}

// Channel returns the selected channel.
func (t *TelemetryReader) Channel() (byte, bool) {
	return t.channel, t.selected
}

// ReadNextByte returns the next content byte, then the CRC. Reading past the
// CRC is an overflow and is reported on the ACK channel.
func (t *TelemetryReader) ReadNextByte() (byte, error) {
	if !t.selected {
		return 0, ErrNoChannelSelected
	}
	if t.idx >= t.n {
		t.reg.ack.Record(t.channel|TelemetryBit, AckOverflow)
		return 0, fmt.Errorf("channel 0x%02X: %w", t.channel, ErrOverflow)
	}
	b := t.buf[t.idx]
	t.idx++
	return b, nil
}

// BytesLeft returns how many bytes remain, CRC included.
func (t *TelemetryReader) BytesLeft() (int, error) {
	if !t.selected {
		return 0, ErrNoChannelSelected
	}
	return t.n - t.idx, nil
}

// ReadAll drains the rest of the channel into dst and returns the count.
func (t *TelemetryReader) ReadAll(dst []byte) (int, error) {
	left, err := t.BytesLeft()
	if err != nil {
		return 0, err
	}
	if len(dst) < left {
		return 0, fmt.Errorf("channel 0x%02X: need %d bytes, have %d: %w",
			t.channel, left, len(dst), ErrPayloadTooLarge)
	}
	for i := 0; i < left; i++ {
		dst[i], _ = t.ReadNextByte()
	}
	return left, nil
}
