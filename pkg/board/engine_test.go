// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Thermoquad/pdslink/pkg/hal/stub"
	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

// ============================================================
// Test Helpers
// ============================================================

// testConfig returns a config with no countdown and fast timers
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Countdown = 0
	cfg.WatchdogInterval = time.Millisecond
	cfg.RebootDelay = 0
	return cfg
}

// newTestBoard builds an enabled board driven without the main loop
func newTestBoard(t *testing.T, cfg Config, table *CommandTable) (*Board, *stub.HAL) {
	t.Helper()
	h := stub.New()
	b, err := New(cfg, h, table)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.Engine().Enable(true)
	return b, h
}

// write performs a master write transaction
func write(e *Engine, data ...byte) bool {
	if !e.OnStart(false) {
		e.OnStop()
		return false
	}
	for _, b := range data {
		e.OnReceive(b)
	}
	e.OnStop()
	return true
}

// read performs a master read transaction of n bytes
func read(e *Engine, n int) ([]byte, bool) {
	if !e.OnStart(true) {
		e.OnStop()
		return nil, false
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = e.OnTransmitReady()
	}
	e.OnStop()
	return out, true
}

// exchange writes a command, dispatches it and reads the response
func exchange(t *testing.T, b *Board, n int, data ...byte) []byte {
	t.Helper()
	if !write(b.Engine(), data...) {
		t.Fatalf("write %X NACKed", data)
	}
	b.ProcessPending()
	resp, ok := read(b.Engine(), n)
	if !ok {
		t.Fatalf("read after %X NACKed", data)
	}
	return resp
}

// countingTable returns a table whose actions count invocations and fill
// the response with the command id
func countingTable(t *testing.T, calls map[byte]int, descs ...CommandDescriptor) *CommandTable {
	t.Helper()
	for i := range descs {
		id := descs[i].ID
		descs[i].Action = func(b *Board, args, resp []byte) error {
			calls[id]++
			for j := range resp {
				resp[j] = id
			}
			return nil
		}
	}
	table, err := NewCommandTable(descs...)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

// ============================================================
// Engine Tests
// ============================================================

func TestEngine_EveryCommandOneActionFixedResponse(t *testing.T) {
	calls := map[byte]int{}
	var descs []CommandDescriptor
	for _, d := range DefaultCommands() {
		descs = append(descs, CommandDescriptor{
			ID: d.ID, Name: d.Name, PayloadLength: d.PayloadLength, ResponseLength: d.ResponseLength,
		})
	}
	b, _ := newTestBoard(t, testConfig(), countingTable(t, calls, descs...))

	for _, d := range descs {
		t.Run(d.Name, func(t *testing.T) {
			frame := append([]byte{d.ID}, make([]byte, d.PayloadLength)...)
			resp := exchange(t, b, d.ResponseLength, frame...)

			if calls[d.ID] != 1 {
				t.Errorf("action called %d times, want 1", calls[d.ID])
			}
			want := make([]byte, d.ResponseLength)
			for i := range want {
				want[i] = d.ID
			}
			if diff := cmp.Diff(want, resp); diff != "" {
				t.Errorf("response (-want +got):\n%s", diff)
			}
			if b.Engine().Armed() {
				t.Error("response still armed after full read")
			}
		})
	}
}

func TestEngine_UnknownCommand(t *testing.T) {
	calls := map[byte]int{}
	table := countingTable(t, calls, CommandDescriptor{ID: 0x01, PayloadLength: 2, ResponseLength: 1})
	b, _ := newTestBoard(t, testConfig(), table)
	e := b.Engine()

	write(e, 0x42, 0x01, 0x02, 0x03)
	b.ProcessPending()

	if len(calls) != 0 {
		t.Errorf("actions called: %v", calls)
	}
	snap := e.Snapshot()
	if snap.Mode != ModeIdle {
		t.Errorf("mode = %s, want Idle", snap.Mode)
	}
	if !snap.Status.Has(StatusUnknownCommand) {
		t.Errorf("status = %s, want UNKNOWN_COMMAND", snap.Status)
	}
	if snap.Counters.BytesDrained != 3 {
		t.Errorf("drained = %d, want 3", snap.Counters.BytesDrained)
	}
	if diff := cmp.Diff(tinyproto.AckPacket{LastCommand: 0x42, Result: tinyproto.AckInvalidTelecommand}, b.LastTelecommand()); diff != "" {
		t.Errorf("telecommand ack (-want +got):\n%s", diff)
	}

	// next command is processed normally
	resp := exchange(t, b, 1, 0x01, 0xAA, 0xBB)
	if resp[0] != 0x01 || calls[0x01] != 1 {
		t.Errorf("follow-up command: resp %X calls %v", resp, calls)
	}
}

func TestEngine_StopMidPayload(t *testing.T) {
	calls := map[byte]int{}
	table := countingTable(t, calls, CommandDescriptor{ID: 0x09, PayloadLength: 10, ResponseLength: 10})
	b, _ := newTestBoard(t, testConfig(), table)
	e := b.Engine()

	e.OnStart(false)
	e.OnReceive(0x09)
	e.OnReceive(0x01)
	e.OnReceive(0x02)
	if snap := e.Snapshot(); snap.Mode != ModeReceivingPayload || snap.RxIndex != 2 || snap.RxRemaining != 8 {
		t.Fatalf("mid-payload snapshot = %+v", snap)
	}
	e.OnStop()

	snap := e.Snapshot()
	if snap.Mode != ModeIdle || snap.RxIndex != 0 || snap.TxIndex != 0 {
		t.Errorf("after stop: mode=%s rx=%d tx=%d", snap.Mode, snap.RxIndex, snap.TxIndex)
	}
	if !snap.Status.Has(StatusInvalidPayloadLength) {
		t.Errorf("status = %s", snap.Status)
	}
	b.ProcessPending()
	if calls[0x09] != 0 {
		t.Fatal("action ran for aborted payload")
	}

	payload := []byte{0x09, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	exchange(t, b, 10, payload...)
	if calls[0x09] != 1 {
		t.Errorf("follow-up command calls = %d", calls[0x09])
	}
}

func TestEngine_RepeatedStartMidPayload(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	e := b.Engine()

	e.OnStart(false)
	e.OnReceive(CmdEcho)
	e.OnReceive(0x01)
	e.OnStart(false)
	if snap := e.Snapshot(); snap.Mode != ModeAwaitingCommandByte || !snap.Status.Has(StatusInvalidPayloadLength) {
		t.Errorf("after repeated start: %+v", snap)
	}
	e.OnStop()
}

func TestEngine_Overrun(t *testing.T) {
	calls := map[byte]int{}
	table := countingTable(t, calls,
		CommandDescriptor{ID: 0x01, PayloadLength: 1, ResponseLength: 1},
		CommandDescriptor{ID: 0x02, PayloadLength: 1, ResponseLength: 1},
	)
	b, _ := newTestBoard(t, testConfig(), table)
	e := b.Engine()

	write(e, 0x01, 0xAA)
	write(e, 0x02, 0xBB) // main loop has not taken the first one yet

	if !e.Status().Has(StatusOverrun) {
		t.Errorf("status = %s, want OVERRUN", e.Status())
	}
	b.ProcessPending()
	if diff := cmp.Diff(map[byte]int{0x01: 1}, calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestEngine_TakeCopiesPayload(t *testing.T) {
	table := countingTable(t, map[byte]int{}, CommandDescriptor{ID: 0x01, PayloadLength: 2, ResponseLength: 1})
	b, _ := newTestBoard(t, testConfig(), table)
	e := b.Engine()

	write(e, 0x01, 0x11, 0x22)
	cmd, ok := e.Take()
	if !ok {
		t.Fatal("no pending command")
	}
	e.endDispatch()

	// the next command lands while the first is still being handled
	write(e, 0x01, 0x33, 0x44)
	if diff := cmp.Diff([]byte{0x11, 0x22}, cmd.Payload); diff != "" {
		t.Errorf("taken payload changed (-want +got):\n%s", diff)
	}
	next, _ := e.Take()
	if diff := cmp.Diff([]byte{0x33, 0x44}, next.Payload); diff != "" {
		t.Errorf("second payload (-want +got):\n%s", diff)
	}
}

func TestEngine_ReadBeforeResponseNACKs(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	e := b.Engine()

	write(e, CmdSystemStatus, 0x00, 0x00)
	if _, ok := read(e, SystemStatusRespLen); ok {
		t.Error("read ACKed while command pending")
	}
	cmd, _ := e.Take()
	if _, ok := read(e, SystemStatusRespLen); ok {
		t.Error("read ACKed while command dispatching")
	}
	if err := e.Arm(cmd, []byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	got, ok := read(e, SystemStatusRespLen)
	if !ok {
		t.Fatal("read NACKed after arm")
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4, 5}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestEngine_ReadWithNothingArmed(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	e := b.Engine()

	got, ok := read(e, 3)
	if !ok {
		t.Fatal("idle read NACKed")
	}
	if diff := cmp.Diff([]byte{0xFF, 0xFF, 0xFF}, got); diff != "" {
		t.Errorf("filler (-want +got):\n%s", diff)
	}
	if snap := e.Snapshot(); snap.Counters.TxUnderruns != 3 || snap.Status != 0 {
		t.Errorf("underruns=%d status=%s", snap.Counters.TxUnderruns, snap.Status)
	}
}

func TestEngine_PartialReadRewinds(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	e := b.Engine()

	payload := []byte{CmdEcho, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	write(e, payload...)
	b.ProcessPending()

	first, _ := read(e, 4)
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, first); diff != "" {
		t.Errorf("partial read (-want +got):\n%s", diff)
	}
	all, _ := read(e, EchoLen)
	if diff := cmp.Diff(payload[1:], all); diff != "" {
		t.Errorf("re-read (-want +got):\n%s", diff)
	}
}

func TestEngine_NewCommandDropsStaleResponse(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	e := b.Engine()

	write(e, CmdEcho, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	b.ProcessPending()
	if !e.Armed() {
		t.Fatal("echo response not armed")
	}
	write(e, CmdSystemStatus, 0, 0)
	if e.Armed() {
		t.Error("stale response still armed after new command")
	}
}

func TestEngine_ResponseToSupersededCommandDropped(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	e := b.Engine()

	write(e, CmdEcho, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	echo, ok := e.Take()
	if !ok {
		t.Fatal("no pending command")
	}

	// SYSTEM_STATUS lands while ECHO is still being handled
	write(e, CmdSystemStatus, 0xAB, 0xCD)
	if err := e.Arm(echo, echo.Payload); err != nil {
		t.Fatal(err)
	}
	if e.Armed() {
		t.Error("superseded response armed")
	}
	if _, ok := read(e, SystemStatusRespLen); ok {
		t.Error("read ACKed while SYSTEM_STATUS pending")
	}

	b.ProcessPending()
	got, ok := read(e, SystemStatusRespLen)
	if !ok {
		t.Fatal("read NACKed after dispatch")
	}
	if diff := cmp.Diff([]byte{0, 0, '2', 0xAB, 0xCD}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if n := e.Snapshot().Counters.StaleResponses; n != 1 {
		t.Errorf("stale responses = %d, want 1", n)
	}
}

func TestEngine_PartialCommandSupersedesResponse(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	e := b.Engine()

	write(e, CmdSystemStatus, 0x00, 0x01)
	cmd, _ := e.Take()

	// a new command byte alone is enough to make the response stale
	e.OnStart(false)
	e.OnReceive(CmdEcho)
	if err := e.Arm(cmd, []byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	if e.Armed() {
		t.Error("response armed while a newer command is being received")
	}
	e.OnStop()
}

func TestEngine_Timeout(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	e := b.Engine()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return start }

	e.OnStart(false)
	e.OnReceive(CmdEcho)
	e.OnReceive(0x01)
	// master never sends the rest nor a stop

	if e.CheckTimeout(start.Add(10 * time.Millisecond)) {
		t.Fatal("timed out too early")
	}
	if !e.CheckTimeout(start.Add(time.Second)) {
		t.Fatal("stalled transfer not timed out")
	}
	snap := e.Snapshot()
	if snap.Mode != ModeIdle || snap.RxIndex != 0 || !snap.Status.Has(StatusTimeout) {
		t.Errorf("after timeout: %+v", snap)
	}
	if snap.Counters.Timeouts != 1 {
		t.Errorf("timeouts = %d", snap.Counters.Timeouts)
	}
	// resting state does not time out
	if e.CheckTimeout(start.Add(time.Hour)) {
		t.Error("idle session timed out")
	}
}

func TestEngine_Disabled(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	e := b.Engine()
	e.Enable(false)

	if write(e, CmdSystemStatus, 0, 0) {
		t.Error("disabled engine ACKed a write")
	}
	if _, ok := read(e, 1); ok {
		t.Error("disabled engine ACKed a read")
	}
	if snap := e.Snapshot(); snap.Pending || snap.Counters.BytesReceived != 0 {
		t.Errorf("disabled engine recorded traffic: %+v", snap)
	}
}

func TestEngine_ZeroLengthPayload(t *testing.T) {
	calls := map[byte]int{}
	table := countingTable(t, calls, CommandDescriptor{ID: 0x07, PayloadLength: 0, ResponseLength: 2})
	b, _ := newTestBoard(t, testConfig(), table)

	resp := exchange(t, b, 2, 0x07)
	if calls[0x07] != 1 {
		t.Errorf("calls = %d", calls[0x07])
	}
	if diff := cmp.Diff([]byte{7, 7}, resp); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestEngine_BackToBackCommandsInOneWrite(t *testing.T) {
	calls := map[byte]int{}
	table := countingTable(t, calls,
		CommandDescriptor{ID: 0x01, PayloadLength: 1, ResponseLength: 1},
		CommandDescriptor{ID: 0x02, PayloadLength: 1, ResponseLength: 1},
	)
	b, _ := newTestBoard(t, testConfig(), table)
	e := b.Engine()

	e.OnStart(false)
	e.OnReceive(0x01)
	e.OnReceive(0xAA)
	b.ProcessPending()
	e.OnReceive(0x02)
	e.OnReceive(0xBB)
	e.OnStop()
	b.ProcessPending()

	if diff := cmp.Diff(map[byte]int{0x01: 1, 0x02: 1}, calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestEngine_ArmTooLarge(t *testing.T) {
	b, _ := newTestBoard(t, testConfig(), nil)
	if err := b.Engine().Arm(Command{}, make([]byte, BufferSize+1)); !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("got %v", err)
	}
}

func TestSnapshot_String(t *testing.T) {
	snap := Snapshot{Mode: ModeIdle, Status: StatusCRCMismatch | StatusTimeout}
	snap.Counters.Rejected = 2
	s := snap.String()
	for _, want := range []string{"CRC_MISMATCH|TIMEOUT", "Rejected:", "Idle"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}
