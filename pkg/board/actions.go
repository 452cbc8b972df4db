// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"fmt"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"
)

// Command IDs
const (
	CmdSystemStatus     = 0x01
	CmdHealthCheck      = 0x02
	CmdReboot           = 0x03
	CmdConverterMonitor = 0x04
	CmdTelecommandAck   = 0x05
	CmdEcho             = 0x09
)

// Argument and response lengths
const (
	SystemStatusArgLen      = 2
	SystemStatusRespLen     = 5
	HealthCheckArgLen       = 2
	HealthCheckRespLen      = 16
	RebootArgLen            = 2
	RebootRespLen           = 1
	ConverterMonitorArgLen  = 2
	ConverterMonitorRespLen = 3
	TelecommandAckArgLen    = 2
	TelecommandAckRespLen   = 2
	EchoLen                 = 10
)

// HealthNameLen is the width of the board name field in the health response.
const HealthNameLen = 12

// SystemStatus argument flags (first argument byte)
const (
	StatusArgClear = 0x01 // clear sticky flags after reporting
)

// RebootKey must be sent as the reboot arguments.
var RebootKey = [RebootArgLen]byte{'R', 'B'}

// Reboot response codes
const (
	RebootRefused  = 0x00
	RebootAccepted = 0x01
)

// DefaultCommands returns the board's command set.
func DefaultCommands() []CommandDescriptor {
	return []CommandDescriptor{
		{
			ID: CmdSystemStatus, Name: "SYSTEM_STATUS",
			PayloadLength: SystemStatusArgLen, ResponseLength: SystemStatusRespLen,
			State: StateSystemStatus, Action: systemStatus,
		},
		{
			ID: CmdHealthCheck, Name: "HEALTH_CHECK",
			PayloadLength: HealthCheckArgLen, ResponseLength: HealthCheckRespLen,
			State: StateHealthCheck, Action: healthCheck,
			PlainOnly: true,
		},
		{
			ID: CmdReboot, Name: "REBOOT",
			PayloadLength: RebootArgLen, ResponseLength: RebootRespLen,
			State: StateReboot, Action: reboot,
			SideEffect: true,
		},
		{
			ID: CmdConverterMonitor, Name: "CONVERTER_MONITOR",
			PayloadLength: ConverterMonitorArgLen, ResponseLength: ConverterMonitorRespLen,
			State: StateConverterMonitor, Action: converterMonitor,
		},
		{
			ID: CmdTelecommandAck, Name: "TELECOMMAND_ACK",
			PayloadLength: TelecommandAckArgLen, ResponseLength: TelecommandAckRespLen,
			State: StateTelecommandAck, Action: telecommandAck,
			NoAck: true,
		},
		{
			ID: CmdEcho, Name: "ECHO",
			PayloadLength: EchoLen, ResponseLength: EchoLen,
			State: StateEcho, Action: echo,
		},
	}
}

// DefaultCommandTable builds the table from DefaultCommands.
func DefaultCommandTable() *CommandTable {
	t, err := NewCommandTable(DefaultCommands()...)
	if err != nil {
		panic(fmt.Sprintf("board: default command table: %v", err))
	}
	return t
}

// systemStatus: [status flags, commands handled, firmware revision, tag0, tag1]
func systemStatus(b *Board, args, resp []byte) error {
	st := b.engine.Status()
	if args[0]&StatusArgClear != 0 {
		b.engine.ClearStatus()
	}
	resp[0] = byte(st)
	resp[1] = byte(b.handled.Load())
	resp[2] = b.cfg.Revision
	resp[3] = args[0]
	resp[4] = args[1]
	return nil
}

// healthCheck: [board name (12), status flags, tag0, tag1, firmware revision]
func healthCheck(b *Board, args, resp []byte) error {
	n := copy(resp[:HealthNameLen], b.cfg.Name)
	for i := n; i < HealthNameLen; i++ {
		resp[i] = ' '
	}
	resp[12] = byte(b.engine.Status())
	resp[13] = args[0]
	resp[14] = args[1]
	resp[15] = b.cfg.Revision
	return nil
}

// reboot schedules a HAL reset once the response has been read.
func reboot(b *Board, args, resp []byte) error {
	if args[0] != RebootKey[0] || args[1] != RebootKey[1] {
		glog.Warningf("board: reboot refused, bad key %02X %02X", args[0], args[1])
		resp[0] = RebootRefused
		return nil
	}
	b.requestReset()
	resp[0] = RebootAccepted
	return nil
}

// converterMonitor: [channel, millivolts hi, millivolts lo]
func converterMonitor(b *Board, args, resp []byte) error {
	ch := args[0]
	if ch >= b.cfg.ConverterChannels {
		return fmt.Errorf("converter channel %d of %d: %w", ch, b.cfg.ConverterChannels, ErrInvalidArgument)
	}
	if err := b.hal.StartADC(ch); err != nil {
		return fmt.Errorf("converter channel %d: %w", ch, err)
	}
	v, err := b.hal.ReadADC(ch)
	if err != nil {
		return fmt.Errorf("converter channel %d: %w", ch, err)
	}
	mv := EncodeMillivolts(v)
	resp[0] = ch
	resp[1] = byte(mv >> 8)
	resp[2] = byte(mv)
	return nil
}

// telecommandAck: [last command, result]
func telecommandAck(b *Board, args, resp []byte) error {
	copy(resp, b.telecommands.Load().Bytes())
	return nil
}

func echo(b *Board, args, resp []byte) error {
	copy(resp, args)
	return nil
}

// EncodeMillivolts converts a reading to the 16-bit wire form, clamped.
func EncodeMillivolts(v physic.ElectricPotential) uint16 {
	mv := int64(v / physic.MilliVolt)
	switch {
	case mv < 0:
		return 0
	case mv > 0xFFFF:
		return 0xFFFF
	}
	return uint16(mv)
}

// DecodeMillivolts is the inverse of EncodeMillivolts.
func DecodeMillivolts(hi, lo byte) physic.ElectricPotential {
	return physic.ElectricPotential(uint16(hi)<<8|uint16(lo)) * physic.MilliVolt
}
