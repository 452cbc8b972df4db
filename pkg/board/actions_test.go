// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/physic"

	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

// ============================================================
// Command Table Tests
// ============================================================

func TestNewCommandTable_Errors(t *testing.T) {
	nop := func(*Board, []byte, []byte) error { return nil }
	tests := []struct {
		name  string
		descs []CommandDescriptor
		want  error
	}{
		{"duplicate", []CommandDescriptor{{ID: 1, Action: nop}, {ID: 1, Action: nop}}, ErrDuplicateCommand},
		{"missing action", []CommandDescriptor{{ID: 1}}, ErrMissingAction},
		{"payload too large", []CommandDescriptor{{ID: 1, Action: nop, PayloadLength: BufferSize + 1}}, ErrBufferOverflow},
		{"response too large", []CommandDescriptor{{ID: 1, Action: nop, ResponseLength: BufferSize + 1}}, ErrResponseTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCommandTable(tt.descs...); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDefaultCommandTable(t *testing.T) {
	table := DefaultCommandTable()
	want := map[byte][2]int{
		CmdSystemStatus:     {2, 5},
		CmdHealthCheck:      {2, 16},
		CmdReboot:           {2, 1},
		CmdConverterMonitor: {2, 3},
		CmdTelecommandAck:   {2, 2},
		CmdEcho:             {10, 10},
	}
	for id, lens := range want {
		d, ok := table.Lookup(id)
		if !ok {
			t.Errorf("command 0x%02X missing", id)
			continue
		}
		if got := [2]int{d.PayloadLength, d.ResponseLength}; got != lens {
			t.Errorf("command 0x%02X lengths = %v, want %v", id, got, lens)
		}
	}
	if len(table.All()) != len(want) {
		t.Errorf("table has %d commands, want %d", len(table.All()), len(want))
	}
	if table.Names()[CmdHealthCheck] != "HEALTH_CHECK" {
		t.Errorf("names = %v", table.Names())
	}
}

// ============================================================
// Action Tests (plain protocol)
// ============================================================

func TestAction_SystemStatus(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	b.Engine().Record(StatusCRCMismatch)

	resp := exchange(t, b, SystemStatusRespLen, CmdSystemStatus, 0x00, 0x7E)
	want := []byte{byte(StatusCRCMismatch), 0, '2', 0x00, 0x7E}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	// clear flag reports, then clears
	resp = exchange(t, b, SystemStatusRespLen, CmdSystemStatus, StatusArgClear, 0x00)
	if resp[0] != byte(StatusCRCMismatch) || resp[1] != 1 {
		t.Errorf("second status = %X", resp)
	}
	if st := b.Engine().Status(); st != 0 {
		t.Errorf("status after clear = %s", st)
	}
}

func TestAction_HealthCheck(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)

	resp := exchange(t, b, HealthCheckRespLen, CmdHealthCheck, 0xA1, 0xB2)
	want := append([]byte("PDS-TQ      "), 0x00, 0xA1, 0xB2, '2')
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestAction_Reboot(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		b, h := newTestBoard(t, testConfig(), nil)
		resp := exchange(t, b, RebootRespLen, CmdReboot, 'R', 'B')
		if resp[0] != RebootAccepted {
			t.Fatalf("resp = %X", resp)
		}
		b.checkReset(b.resetAt)
		if h.Resets() != 1 {
			t.Errorf("resets = %d, want 1", h.Resets())
		}
	})

	t.Run("waits for response", func(t *testing.T) {
		cfg := testConfig()
		cfg.RebootDelay = time.Hour
		b, h := newTestBoard(t, cfg, nil)
		write(b.Engine(), CmdReboot, 'R', 'B')
		b.ProcessPending()

		b.checkReset(time.Now())
		if h.Resets() != 0 {
			t.Fatal("reset before the response was read")
		}
		read(b.Engine(), RebootRespLen)
		b.checkReset(time.Now())
		if h.Resets() != 1 {
			t.Errorf("resets = %d after response read", h.Resets())
		}
	})

	t.Run("bad key", func(t *testing.T) {
		b, h := newTestBoard(t, testConfig(), nil)
		resp := exchange(t, b, RebootRespLen, CmdReboot, 0x00, 0x00)
		if resp[0] != RebootRefused {
			t.Fatalf("resp = %X", resp)
		}
		b.checkReset(time.Now())
		if h.Resets() != 0 {
			t.Error("reset with bad key")
		}
	})
}

func TestAction_ConverterMonitor(t *testing.T) {
	b, h := newTestBoard(t, testConfig(), nil)
	h.SetADC(1, 5123*physic.MilliVolt)

	resp := exchange(t, b, ConverterMonitorRespLen, CmdConverterMonitor, 0x01, 0x00)
	if diff := cmp.Diff([]byte{0x01, 0x14, 0x03}, resp); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if v := DecodeMillivolts(resp[1], resp[2]); v != 5123*physic.MilliVolt {
		t.Errorf("decoded %s", v)
	}
}

func TestAction_ConverterMonitorBadChannel(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)

	write(b.Engine(), CmdConverterMonitor, 0x09, 0x00)
	b.ProcessPending()
	if b.Engine().Armed() {
		t.Error("response armed for failed action")
	}
	if diff := cmp.Diff(tinyproto.AckPacket{LastCommand: CmdConverterMonitor, Result: tinyproto.AckInvalidTelecommand}, b.LastTelecommand()); diff != "" {
		t.Errorf("ack (-want +got):\n%s", diff)
	}
	snap := b.Engine().Snapshot()
	if snap.Status != StatusActionFailed {
		t.Errorf("status = %s, want ACTION_FAILED", snap.Status)
	}
	if snap.Dispatching {
		t.Error("dispatch window left open after failed action")
	}

	// the master reads filler instead of waiting on a response
	got, ok := read(b.Engine(), ConverterMonitorRespLen)
	if !ok {
		t.Fatal("read NACKed after failed action")
	}
	if diff := cmp.Diff([]byte{0xFF, 0xFF, 0xFF}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestAction_TelecommandAckReportsPreviousCommand(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)

	exchange(t, b, EchoLen, CmdEcho, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	resp := exchange(t, b, TelecommandAckRespLen, CmdTelecommandAck, 0, 0)
	want := []byte{CmdEcho, byte(tinyproto.AckCompleted)}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	// asking twice still reports the echo
	resp = exchange(t, b, TelecommandAckRespLen, CmdTelecommandAck, 0, 0)
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("second ack (-want +got):\n%s", diff)
	}
}

func TestMillivolts_Clamp(t *testing.T) {
	if got := EncodeMillivolts(-5 * physic.Volt); got != 0 {
		t.Errorf("negative = %d", got)
	}
	if got := EncodeMillivolts(100 * physic.Volt); got != 0xFFFF {
		t.Errorf("overrange = %d", got)
	}
}

func TestNew_NameTooLong(t *testing.T) {
	cfg := testConfig()
	cfg.Name = "THIS-NAME-IS-TOO-LONG"
	if _, err := New(cfg, nil, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("got %v", err)
	}
}

func TestStatus_String(t *testing.T) {
	if s := Status(0).String(); s != "OK" {
		t.Errorf("got %q", s)
	}
	if s := (StatusUnknownCommand | StatusOverrun).String(); s != "UNKNOWN_COMMAND|OVERRUN" {
		t.Errorf("got %q", s)
	}
}
