// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/pdslink/pkg/hal"
)

// Run brings the board up and runs the main loop until ctx is done. The
// loop sleeps in Idle and wakes for a completed command or the watchdog
// tick. Actions run one at a time on this goroutine.
func (b *Board) Run(ctx context.Context) error {
	if err := b.bringUp(); err != nil {
		return err
	}
	if err := b.countdown(ctx); err != nil {
		return ignoreCancel(err)
	}

	b.engine.Enable(true)
	defer b.engine.Enable(false)
	b.setState(StateIdle)
	glog.Infof("board %s: listening at 0x%02X (%s protocol)", b.cfg.Name, b.cfg.Address, b.protocolName())

	var tick <-chan time.Time
	if b.cfg.WatchdogInterval > 0 {
		ticker := time.NewTicker(b.cfg.WatchdogInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		src, err := b.hal.EnterLowPowerWait(ctx, b.wake, tick)
		if err != nil {
			return ignoreCancel(err)
		}
		now := time.Now()
		if src == hal.WakeTimer {
			if b.engine.CheckTimeout(now) {
				glog.Warningf("board: transfer timed out")
			}
		}
		b.ProcessPending()
		b.checkReset(now)
		b.reportStatus()
	}
}

func (b *Board) bringUp() error {
	if err := b.hal.ConfigureClock(b.cfg.Clock); err != nil {
		return fmt.Errorf("configure clock: %w", err)
	}
	if err := b.hal.ConfigurePin(b.cfg.SDA, hal.PinI2CSDA); err != nil {
		return fmt.Errorf("configure SDA: %w", err)
	}
	if err := b.hal.ConfigurePin(b.cfg.SCL, hal.PinI2CSCL); err != nil {
		return fmt.Errorf("configure SCL: %w", err)
	}
	return nil
}

// countdown keeps the bus disabled until the start-up alarm fires.
func (b *Board) countdown(ctx context.Context) error {
	b.setState(StateCountdown)
	if b.cfg.Countdown <= 0 {
		return nil
	}
	alarm, err := b.hal.ArmAlarm(b.cfg.Countdown)
	if err != nil {
		return fmt.Errorf("arm countdown alarm: %w", err)
	}
	glog.Infof("board %s: countdown %s", b.cfg.Name, b.cfg.Countdown)
	for {
		src, err := b.hal.EnterLowPowerWait(ctx, b.wake, alarm)
		if err != nil {
			return err
		}
		if src == hal.WakeTimer {
			glog.Infof("board %s: countdown elapsed", b.cfg.Name)
			return nil
		}
	}
}

// ProcessPending dispatches every command the engine has completed. Run
// calls it on each wake; tests driving the engine directly may call it too.
func (b *Board) ProcessPending() {
	for {
		cmd, ok := b.engine.Take()
		if !ok {
			return
		}
		b.dispatch(cmd)
	}
}

func (b *Board) dispatch(cmd Command) {
	b.setState(b.stateFor(cmd.ID))
	defer b.setState(StateIdle)

	n, err := b.proto.OnPayloadComplete(cmd, b.resp[:])
	if err != nil {
		if flag := statusFor(err); flag != 0 {
			b.engine.Record(flag)
		}
		b.engine.endDispatch()
		glog.Warningf("board: command 0x%02X: %v", cmd.ID, err)
		return
	}
	if err := b.engine.Arm(cmd, b.resp[:n]); err != nil {
		glog.Warningf("board: command 0x%02X: %v", cmd.ID, err)
		return
	}
	b.handled.Add(1)
	glog.V(1).Infof("board: command 0x%02X handled, %d byte response", cmd.ID, n)

	if b.resetPending && b.resetAt.IsZero() {
		b.resetAt = time.Now().Add(b.cfg.RebootDelay)
	}
}

// stateFor picks the per-command board state for a command or selector.
func (b *Board) stateFor(id byte) State {
	if b.framed != nil {
		id &= 0x7F
	}
	if d, ok := b.table.Lookup(id); ok {
		return d.State
	}
	return StateBusy
}

func (b *Board) requestReset() {
	b.resetPending = true
	b.resetAt = time.Time{}
}

// checkReset performs a requested reset once the response has been read or
// the reboot delay has passed.
func (b *Board) checkReset(now time.Time) {
	if !b.resetPending || b.resetAt.IsZero() {
		return
	}
	if b.engine.Armed() && now.Before(b.resetAt) {
		return
	}
	b.resetPending = false
	b.resetAt = time.Time{}

	glog.Infof("board %s: reset", b.cfg.Name)
	if err := b.hal.Reset(); err != nil {
		glog.Errorf("board: reset failed: %v", err)
		return
	}
	b.engine.ClearStatus()
	b.telecommands.Record(0, 0)
}

// reportStatus logs newly raised sticky flags.
func (b *Board) reportStatus() {
	st := b.engine.Status()
	if raised := st &^ b.lastStatus; raised != 0 {
		glog.Warningf("board: status raised %s (now %s)", raised, st)
	}
	b.lastStatus = st
}

func (b *Board) protocolName() string {
	if b.framed != nil {
		return "framed"
	}
	return "plain"
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
