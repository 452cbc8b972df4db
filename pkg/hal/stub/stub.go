// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package stub provides a host-side HAL for tests and the board simulator.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"

	"github.com/Thermoquad/pdslink/pkg/hal"
)

// HAL records configuration calls and serves programmable ADC readings.
type HAL struct {
	mu       sync.Mutex
	clock    *hal.ClockConfig
	pins     map[hal.Pin]hal.PinFunction
	adc      map[uint8]physic.ElectricPotential
	started  map[uint8]bool
	alarms   []time.Duration
	resets   int
	sleeps   int
	resetErr error

	// AlarmScale shortens armed alarms, e.g. 0.001 turns minutes into
	// milliseconds for the simulator. Zero means no scaling.
	AlarmScale float64
}

var _ hal.HAL = (*HAL)(nil)

// New creates a stub HAL.
func New() *HAL {
	return &HAL{
		pins:    make(map[hal.Pin]hal.PinFunction),
		adc:     make(map[uint8]physic.ElectricPotential),
		started: make(map[uint8]bool),
	}
}

// SetADC programs the reading returned for channel.
func (h *HAL) SetADC(channel uint8, v physic.ElectricPotential) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.adc[channel] = v
}

// FailReset makes Reset return err.
func (h *HAL) FailReset(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resetErr = err
}

func (h *HAL) ConfigureClock(cfg hal.ClockConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = &cfg
	glog.V(2).Infof("stub: clock MCLK=%s SMCLK=%s", cfg.MCLK, cfg.SMCLK)
	return nil
}

func (h *HAL) ConfigurePin(p hal.Pin, fn hal.PinFunction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pins[p] = fn
	glog.V(2).Infof("stub: pin %s -> %s", p, fn)
	return nil
}

func (h *HAL) StartADC(channel uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started[channel] = true
	return nil
}

func (h *HAL) ReadADC(channel uint8) (physic.ElectricPotential, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started[channel] {
		return 0, fmt.Errorf("stub: ADC channel %d read before start", channel)
	}
	return h.adc[channel], nil
}

func (h *HAL) ArmAlarm(d time.Duration) (<-chan time.Time, error) {
	h.mu.Lock()
	h.alarms = append(h.alarms, d)
	scale := h.AlarmScale
	h.mu.Unlock()

	if scale > 0 {
		d = time.Duration(float64(d) * scale)
	}
	return time.After(d), nil
}

func (h *HAL) EnterLowPowerWait(ctx context.Context, wake *hal.Wake, timer <-chan time.Time) (hal.WakeSource, error) {
	h.mu.Lock()
	h.sleeps++
	h.mu.Unlock()
	return hal.Wait(ctx, wake, timer)
}

func (h *HAL) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resetErr != nil {
		return h.resetErr
	}
	h.resets++
	return nil
}

// Clock returns the configured clock, if any.
func (h *HAL) Clock() (hal.ClockConfig, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clock == nil {
		return hal.ClockConfig{}, false
	}
	return *h.clock, true
}

// PinFunction returns how p was configured.
func (h *HAL) PinFunction(p hal.Pin) (hal.PinFunction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn, ok := h.pins[p]
	return fn, ok
}

// Alarms returns the durations passed to ArmAlarm.
func (h *HAL) Alarms() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.alarms...)
}

// Resets returns how many times Reset succeeded.
func (h *HAL) Resets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resets
}

// Sleeps returns how many low-power waits were entered.
func (h *HAL) Sleeps() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sleeps
}
