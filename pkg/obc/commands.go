// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package obc

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/physic"

	"github.com/Thermoquad/pdslink/pkg/board"
	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

// SystemStatus is the decoded SYSTEM_STATUS response.
type SystemStatus struct {
	Status   board.Status
	Handled  uint8
	Revision byte
	Tag      [2]byte
}

func (s SystemStatus) String() string {
	return fmt.Sprintf("status=%s handled=%d rev=%c tag=%02X%02X", s.Status, s.Handled, s.Revision, s.Tag[0], s.Tag[1])
}

// Health is the decoded HEALTH_CHECK response.
type Health struct {
	Name     string
	Status   board.Status
	Tag      [2]byte
	Revision byte
}

func (h Health) String() string {
	return fmt.Sprintf("%s rev=%c status=%s tag=%02X%02X", h.Name, h.Revision, h.Status, h.Tag[0], h.Tag[1])
}

// Reading is one converter channel sample.
type Reading struct {
	Channel uint8
	Voltage physic.ElectricPotential
}

func (r Reading) String() string {
	return fmt.Sprintf("ch%d %s", r.Channel, r.Voltage)
}

// SystemStatus reads the sticky status flags. clear asks the board to reset
// them after reporting. tag is echoed back.
func (c *Client) SystemStatus(clear bool, tag byte) (SystemStatus, error) {
	var flags byte
	if clear {
		flags |= board.StatusArgClear
	}
	resp, err := c.Query(board.CmdSystemStatus, []byte{flags, tag})
	if err != nil {
		return SystemStatus{}, err
	}
	if len(resp) != board.SystemStatusRespLen {
		return SystemStatus{}, fmt.Errorf("system status: %w", ErrBadResponse)
	}
	return SystemStatus{
		Status:   board.Status(resp[0]),
		Handled:  resp[1],
		Revision: resp[2],
		Tag:      [2]byte{resp[3], resp[4]},
	}, nil
}

// HealthCheck is only served by the plain protocol.
func (c *Client) HealthCheck(tag [2]byte) (Health, error) {
	resp, err := c.Command(board.CmdHealthCheck, tag[:])
	if err != nil {
		return Health{}, err
	}
	return Health{
		Name:     strings.TrimRight(string(resp[:board.HealthNameLen]), " "),
		Status:   board.Status(resp[12]),
		Tag:      [2]byte{resp[13], resp[14]},
		Revision: resp[15],
	}, nil
}

// Reboot sends the reboot key. It reports whether the board accepted it.
func (c *Client) Reboot() (bool, error) {
	resp, err := c.Query(board.CmdReboot, board.RebootKey[:])
	if err != nil {
		return false, err
	}
	return resp[0] == board.RebootAccepted, nil
}

// Converter samples one converter channel.
func (c *Client) Converter(ch uint8) (Reading, error) {
	resp, err := c.Query(board.CmdConverterMonitor, []byte{ch, 0})
	if err != nil {
		return Reading{}, err
	}
	if resp[0] != ch {
		return Reading{}, fmt.Errorf("converter: asked for channel %d, got %d: %w", ch, resp[0], ErrBadResponse)
	}
	return Reading{Channel: ch, Voltage: board.DecodeMillivolts(resp[1], resp[2])}, nil
}

// TelecommandAck reports the last command the board handled and its result.
func (c *Client) TelecommandAck() (tinyproto.AckPacket, error) {
	resp, err := c.Query(board.CmdTelecommandAck, make([]byte, board.TelecommandAckArgLen))
	if err != nil {
		return tinyproto.AckPacket{}, err
	}
	return tinyproto.ParseAck(resp)
}

// Echo sends payload and returns what the board sent back. Short payloads
// are zero padded.
func (c *Client) Echo(payload []byte) ([]byte, error) {
	if len(payload) > board.EchoLen {
		return nil, fmt.Errorf("echo: %d bytes: %w", len(payload), board.ErrInvalidPayloadLength)
	}
	args := make([]byte, board.EchoLen)
	copy(args, payload)
	return c.Query(board.CmdEcho, args)
}
