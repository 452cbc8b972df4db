// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package obc

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/Thermoquad/pdslink/pkg/board"
	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

const addr = board.DefaultAddress

// withCRC appends the telemetry CRC to content
func withCRC(content ...byte) []byte {
	return append(content, tinyproto.CalculateCRC(content))
}

func telemetryRequest(ch byte) []byte {
	req, _ := tinyproto.EncodeTelemetryRequest(ch)
	return req
}

func telecommand(id byte, payload ...byte) []byte {
	frame, _ := tinyproto.EncodeTelecommand(id, payload)
	return frame
}

// playback returns a client on a playback bus and a function that checks
// every op was consumed
func playback(t *testing.T, framed bool, ops ...i2ctest.IO) (*Client, func()) {
	t.Helper()
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}
	c := New(bus, &Opts{Addr: addr, Framed: framed, Timeout: 20 * time.Millisecond}, nil)
	return c, func() {
		t.Helper()
		if err := bus.Close(); err != nil {
			t.Error(err)
		}
	}
}

// ============================================================
// Plain Protocol Tests
// ============================================================

var pbSystemStatus = []i2ctest.IO{
	{Addr: addr, W: []byte{board.CmdSystemStatus, board.StatusArgClear, 0x7E}},
	{Addr: addr, R: []byte{byte(board.StatusCRCMismatch), 3, '2', board.StatusArgClear, 0x7E}},
}

func TestSystemStatus(t *testing.T) {
	c, done := playback(t, false, pbSystemStatus...)
	defer done()

	st, err := c.SystemStatus(true, 0x7E)
	if err != nil {
		t.Fatal(err)
	}
	want := SystemStatus{Status: board.StatusCRCMismatch, Handled: 3, Revision: '2', Tag: [2]byte{board.StatusArgClear, 0x7E}}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if s := st.String(); s != "status=CRC_MISMATCH handled=3 rev=2 tag=017E" {
		t.Errorf("String() = %q", s)
	}
}

func TestHealthCheck(t *testing.T) {
	resp := append([]byte("PDS-TQ      "), 0x00, 0xA1, 0xB2, '2')
	c, done := playback(t, false,
		i2ctest.IO{Addr: addr, W: []byte{board.CmdHealthCheck, 0xA1, 0xB2}},
		i2ctest.IO{Addr: addr, R: resp},
	)
	defer done()

	h, err := c.HealthCheck([2]byte{0xA1, 0xB2})
	if err != nil {
		t.Fatal(err)
	}
	want := Health{Name: "PDS-TQ", Tag: [2]byte{0xA1, 0xB2}, Revision: '2'}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestConverter(t *testing.T) {
	c, done := playback(t, false,
		i2ctest.IO{Addr: addr, W: []byte{board.CmdConverterMonitor, 0x01, 0x00}},
		i2ctest.IO{Addr: addr, R: []byte{0x01, 0x14, 0x03}},
	)
	defer done()

	r, err := c.Converter(1)
	if err != nil {
		t.Fatal(err)
	}
	if r.Voltage != 5123*physic.MilliVolt {
		t.Errorf("voltage = %s", r.Voltage)
	}
}

func TestConverter_WrongChannel(t *testing.T) {
	c, done := playback(t, false,
		i2ctest.IO{Addr: addr, W: []byte{board.CmdConverterMonitor, 0x01, 0x00}},
		i2ctest.IO{Addr: addr, R: []byte{0x02, 0x00, 0x00}},
	)
	defer done()

	if _, err := c.Converter(1); !errors.Is(err, ErrBadResponse) {
		t.Errorf("got %v", err)
	}
}

func TestCommand_Errors(t *testing.T) {
	c, _ := playback(t, false)
	if _, err := c.Command(0x30, nil); !errors.Is(err, ErrUnknown) {
		t.Errorf("unknown id: got %v", err)
	}
	if _, err := c.Command(board.CmdEcho, []byte{1}); !errors.Is(err, board.ErrInvalidPayloadLength) {
		t.Errorf("short payload: got %v", err)
	}
	if _, err := c.Echo(make([]byte, board.EchoLen+1)); !errors.Is(err, board.ErrInvalidPayloadLength) {
		t.Errorf("long echo: got %v", err)
	}
	if _, err := c.Telemetry(1, 1); !errors.Is(err, ErrWrongVariant) {
		t.Errorf("telemetry in plain mode: got %v", err)
	}
}

func TestCommand_ReadTimesOut(t *testing.T) {
	// the playback bus rejects the unexpected read every time
	c, _ := playback(t, false,
		i2ctest.IO{Addr: addr, W: []byte{board.CmdReboot, 'R', 'B'}},
	)
	if _, err := c.Reboot(); !errors.Is(err, ErrNotReady) {
		t.Errorf("got %v, want ErrNotReady", err)
	}
}

// ============================================================
// Framed Protocol Tests
// ============================================================

func TestTelemetry(t *testing.T) {
	c, done := playback(t, true,
		i2ctest.IO{Addr: addr, W: telemetryRequest(board.CmdConverterMonitor)},
		i2ctest.IO{Addr: addr, R: withCRC(0x02, 0x04, 0xE2)},
	)
	defer done()

	content, err := c.Telemetry(board.CmdConverterMonitor, board.ConverterMonitorRespLen)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x02, 0x04, 0xE2}, content); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestTelemetry_BadCRC(t *testing.T) {
	resp := withCRC(0x01, 0x02)
	resp[2] ^= 0xFF
	c, done := playback(t, true,
		i2ctest.IO{Addr: addr, W: telemetryRequest(tinyproto.TelemetryAck)},
		i2ctest.IO{Addr: addr, R: resp},
	)
	defer done()

	if _, err := c.Ack(); !errors.Is(err, tinyproto.ErrCRCMismatch) {
		t.Errorf("got %v, want ErrCRCMismatch", err)
	}
}

func TestQuery_Framed(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	c, done := playback(t, true,
		i2ctest.IO{Addr: addr, W: telecommand(board.CmdEcho, payload...)},
		i2ctest.IO{Addr: addr, R: []byte{0xFF}},
		i2ctest.IO{Addr: addr, W: telemetryRequest(board.CmdEcho)},
		i2ctest.IO{Addr: addr, R: withCRC(payload...)},
	)
	defer done()

	got, err := c.Echo(payload)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(payload, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestPing(t *testing.T) {
	c, done := playback(t, true,
		i2ctest.IO{Addr: addr, W: tinyproto.EncodePing()},
		i2ctest.IO{Addr: addr, R: []byte{0xFF}},
		i2ctest.IO{Addr: addr, W: telemetryRequest(tinyproto.TelemetryAck)},
		i2ctest.IO{Addr: addr, R: withCRC(tinyproto.TelemetryBit, byte(tinyproto.AckProcessing))},
	)
	defer done()

	if err := c.Ping(); err != nil {
		t.Fatal(err)
	}
}

func TestFramed_PlainOnlyCommand(t *testing.T) {
	c, _ := playback(t, true)
	if _, err := c.Query(board.CmdHealthCheck, []byte{0, 0}); !errors.Is(err, ErrWrongVariant) {
		t.Errorf("got %v", err)
	}
	if _, err := c.HealthCheck([2]byte{}); !errors.Is(err, ErrWrongVariant) {
		t.Errorf("got %v", err)
	}
}
