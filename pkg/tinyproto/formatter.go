// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package tinyproto

import (
	"fmt"
	"strings"
	"time"
)

// Names maps telecommand/channel ids to display names.
type Names map[byte]string

// Name returns the display name for id, falling back to the reserved names
// and then to hex.
func (n Names) Name(id byte, telemetry bool) string {
	if name, ok := n[id]; ok {
		return name
	}
	switch {
	case telemetry && id == TelemetryAck:
		return "ACK"
	case !telemetry && id == TelecommandPing:
		return "PING"
	}
	return fmt.Sprintf("0x%02X", id)
}

// FormatFrame formats a frame into a human-readable line
func FormatFrame(f *Frame, at time.Time, names Names) string {
	timestamp := at.Format("15:04:05.000")
	if f.IsTelemetry() {
		return fmt.Sprintf("[%s] TLM_REQ %s (ch=%d) crc=0x%02X\n",
			timestamp, names.Name(f.ID(), true), f.ID(), f.CRC)
	}
	return fmt.Sprintf("[%s] TC %s (id=%d) len=%d payload=[%s] crc=0x%02X\n",
		timestamp, names.Name(f.ID(), false), f.ID(), len(f.Payload), FormatHex(f.Payload), f.CRC)
}

// FormatAck formats an ACK channel packet
func FormatAck(p AckPacket, names Names) string {
	return fmt.Sprintf("last=%s (0x%02X) result=%s",
		names.Name(p.LastCommand&SelectorMask, IsTelemetry(p.LastCommand)), p.LastCommand, p.Result)
}

// FormatHex formats bytes as space-separated hex
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
