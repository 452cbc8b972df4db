// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/pdslink/pkg/hal"
)

// Engine is the I2C slave byte engine. Its On* methods are the interrupt
// handlers: each runs to completion under mu, which stands in for the
// interrupt mask. The main loop talks to it through Take, Arm, endDispatch
// and Record.
type Engine struct {
	mu sync.Mutex
	s  session

	proto    Protocol
	magic    byte
	hasMagic bool
	wake     *hal.Wake
	enabled  bool
	timeout  time.Duration
	now      func() time.Time
}

// NewEngine creates a disabled engine bound to a protocol and wake signal.
func NewEngine(proto Protocol, wake *hal.Wake, timeout time.Duration) *Engine {
	e := &Engine{
		proto:   proto,
		wake:    wake,
		timeout: timeout,
		now:     time.Now,
	}
	e.magic, e.hasMagic = proto.Magic()
	return e
}

// Enable turns address matching on or off.
func (e *Engine) Enable(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = on
	if !on {
		e.s.mode = ModeIdle
		e.s.resetRX()
		e.s.drain = false
	}
}

// restMode is where the session goes once a transfer is done.
func (e *Engine) restMode() Mode {
	if e.hasMagic {
		return ModeIdle
	}
	return ModeAwaitingCommandByte
}

// OnStart handles an address match. It returns false to NACK.
func (e *Engine) OnStart(read bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return false
	}
	e.s.lastActivity = e.now()

	if !read {
		if e.s.mode == ModeReceivingPayload {
			// repeated start abandoned the payload
			e.s.status |= StatusInvalidPayloadLength
			e.s.counters.Rejected++
			e.s.resetRX()
		}
		e.s.drain = false
		e.s.mode = e.restMode()
		return true
	}

	// repeated start into a read before the payload was complete
	if e.s.mode == ModeReceivingPayload {
		e.s.counters.Rejected++
		e.failLocked(StatusInvalidPayloadLength)
	}

	if e.s.ready {
		// a newer command is queued; whatever is armed belongs to an older one
		return false
	}
	if e.s.armed && e.s.txRemaining > 0 {
		e.s.mode = ModeTransmittingPayload
		return true
	}
	if e.s.dispatching {
		// response not ready yet; the master retries
		return false
	}
	return true
}

// OnReceive handles one byte written by the master.
func (e *Engine) OnReceive(b byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return
	}
	e.s.counters.BytesReceived++
	e.s.lastActivity = e.now()
	if e.s.drain {
		e.s.counters.BytesDrained++
		return
	}

	switch e.s.mode {
	case ModeReceivingPayload:
		if e.s.rxIndex >= BufferSize {
			e.failLocked(StatusBufferOverflow)
			return
		}
		e.s.rx[e.s.active][e.s.rxIndex] = b
		e.s.rxIndex++
		e.s.rxRemaining--
		if e.s.rxRemaining == 0 {
			e.completeLocked()
		}

	case ModeAwaitingCommandByte:
		e.beginLocked(b)

	default:
		// Idle, or a write while a response is armed
		if e.hasMagic {
			if b == e.magic {
				e.s.mode = ModeAwaitingCommandByte
			} else {
				e.s.counters.BytesDrained++
			}
			return
		}
		e.beginLocked(b)
	}
}

// beginLocked handles a command byte.
func (e *Engine) beginLocked(id byte) {
	e.s.pendingID = id
	// a new command makes any unread or in-flight response stale
	e.s.gen++
	e.s.disarm()
	e.s.resetRX()

	n, err := e.proto.OnCommandByte(id)
	if err != nil {
		e.s.counters.Rejected++
		e.failLocked(statusFor(err))
		return
	}
	if n > BufferSize {
		e.s.counters.Rejected++
		e.failLocked(StatusBufferOverflow)
		return
	}
	if n == 0 {
		e.completeLocked()
		return
	}
	e.s.rxRemaining = n
	e.s.mode = ModeReceivingPayload
}

// completeLocked hands the active bank to the main loop.
func (e *Engine) completeLocked() {
	defer func() { e.s.mode = e.restMode() }()

	if e.s.ready {
		// previous command not taken yet; drop this one
		e.s.status |= StatusOverrun
		e.s.counters.Overruns++
		e.s.resetRX()
		return
	}

	e.s.ready = true
	e.s.readyID = e.s.pendingID
	e.s.readyBank = e.s.active
	e.s.readyLen = e.s.rxIndex
	e.s.readyAt = e.s.lastActivity
	e.s.readyGen = e.s.gen
	e.s.active ^= 1
	e.s.resetRX()
	e.s.counters.Commands++
	e.wake.Notify()
}

// failLocked records a sticky error and drains the rest of the transfer.
func (e *Engine) failLocked(flag Status) {
	e.s.status |= flag
	e.s.mode = ModeIdle
	e.s.resetRX()
	e.s.drain = true
}

// OnTransmitReady returns the next byte for a master read.
func (e *Engine) OnTransmitReady() byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.mode != ModeTransmittingPayload || e.s.txRemaining == 0 {
		e.s.counters.TxUnderruns++
		return txFiller
	}
	e.s.lastActivity = e.now()
	b := e.s.tx[e.s.txIndex]
	e.s.txIndex++
	e.s.txRemaining--
	e.s.counters.BytesTransmitted++
	if e.s.txRemaining == 0 {
		e.s.disarm()
		e.s.counters.Responses++
		e.s.mode = e.restMode()
	}
	return b
}

// OnStop handles the bus stop condition.
func (e *Engine) OnStop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.counters.Stops++
	if e.s.mode == ModeReceivingPayload {
		e.s.status |= StatusInvalidPayloadLength
		e.s.counters.Rejected++
	}
	e.s.resetRX()
	e.s.drain = false
	e.s.mode = ModeIdle
	if e.s.armed {
		// a partially read response is sent again from the start
		e.s.txIndex = 0
		e.s.txRemaining = e.s.txLen
	}
}

// CheckTimeout forces the session idle when a transfer stalls.
func (e *Engine) CheckTimeout(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timeout <= 0 {
		return false
	}
	stalled := e.s.mode == ModeReceivingPayload ||
		(e.hasMagic && e.s.mode == ModeAwaitingCommandByte) ||
		e.s.drain
	if !stalled || now.Sub(e.s.lastActivity) < e.timeout {
		return false
	}

	glog.V(2).Infof("engine: transfer stalled in %s, forcing idle", e.s.mode)
	e.s.status |= StatusTimeout
	e.s.counters.Timeouts++
	e.s.resetRX()
	e.s.drain = false
	e.s.mode = ModeIdle
	return true
}

// Take copies the pending command out. The engine keeps receiving into the
// other bank meanwhile.
func (e *Engine) Take() (Command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.s.ready {
		return Command{}, false
	}
	cmd := Command{
		ID:      e.s.readyID,
		Payload: append([]byte(nil), e.s.rx[e.s.readyBank][:e.s.readyLen]...),
		At:      e.s.readyAt,
		Gen:     e.s.readyGen,
	}
	e.s.ready = false
	e.s.dispatching = true
	return cmd, true
}

// Arm primes the response to cmd for transmission and ends the dispatch
// window. The response is dropped when another command byte has arrived since
// cmd was received. An empty resp only ends the window.
func (e *Engine) Arm(cmd Command, resp []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.dispatching = false
	if len(resp) > BufferSize {
		return fmt.Errorf("%d bytes: %w", len(resp), ErrResponseTooLarge)
	}
	if len(resp) == 0 {
		return nil
	}
	if cmd.Gen != e.s.gen {
		glog.V(2).Infof("engine: response to 0x%02X superseded, dropped", cmd.ID)
		e.s.counters.StaleResponses++
		return nil
	}
	copy(e.s.tx[:], resp)
	e.s.txLen = len(resp)
	e.s.txIndex = 0
	e.s.txRemaining = len(resp)
	e.s.armed = true
	if e.s.mode == ModeIdle || e.s.mode == ModeAwaitingCommandByte {
		e.s.mode = ModeTransmittingPayload
	}
	return nil
}

// endDispatch closes the dispatch window of a command that has no response.
func (e *Engine) endDispatch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.dispatching = false
}

// Armed reports whether a response is waiting to be read.
func (e *Engine) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.armed
}

// Record sets sticky flags from the main loop.
func (e *Engine) Record(flags Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.status |= flags
}

// Status returns the sticky flags.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.status
}

// ClearStatus clears the sticky flags and returns what was set.
func (e *Engine) ClearStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.s.status
	e.s.status = 0
	return st
}

// Snapshot returns a copy of the session state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Mode:        e.s.mode,
		RxIndex:     e.s.rxIndex,
		RxRemaining: e.s.rxRemaining,
		TxIndex:     e.s.txIndex,
		TxRemaining: e.s.txRemaining,
		PendingID:   e.s.pendingID,
		Armed:       e.s.armed,
		Pending:     e.s.ready,
		Dispatching: e.s.dispatching,
		Enabled:     e.enabled,
		Status:      e.s.status,
		Counters:    e.s.counters,
	}
}
