// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package hal describes the hardware operations the board firmware needs from
// its microcontroller. Register-level sequences live behind this interface.
package hal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// ErrUnsupported is returned by implementations that lack an operation.
var ErrUnsupported = errors.New("hal: operation not supported")

// Pin identifies a port pin, e.g. P1.6 is Pin{Port: 1, Bit: 6}.
type Pin struct {
	Port uint8
	Bit  uint8
}

func (p Pin) String() string {
	return fmt.Sprintf("P%d.%d", p.Port, p.Bit)
}

// PinFunction is the role a pin is configured for
type PinFunction uint8

const (
	PinInput PinFunction = iota
	PinOutput
	PinI2CSDA
	PinI2CSCL
	PinAnalog
	PinPWM
)

func (f PinFunction) String() string {
	switch f {
	case PinInput:
		return "input"
	case PinOutput:
		return "output"
	case PinI2CSDA:
		return "i2c-sda"
	case PinI2CSCL:
		return "i2c-scl"
	case PinAnalog:
		return "analog"
	case PinPWM:
		return "pwm"
	default:
		return fmt.Sprintf("function(%d)", uint8(f))
	}
}

// ClockConfig selects the core and peripheral clock frequencies.
type ClockConfig struct {
	MCLK  physic.Frequency
	SMCLK physic.Frequency
}

// DefaultClock is the 16 MHz DCO configuration.
var DefaultClock = ClockConfig{
	MCLK:  16 * physic.MegaHertz,
	SMCLK: 16 * physic.MegaHertz,
}

// WakeSource says what ended a low-power wait.
type WakeSource uint8

const (
	WakeInterrupt WakeSource = iota
	WakeTimer
)

func (s WakeSource) String() string {
	if s == WakeTimer {
		return "timer"
	}
	return "interrupt"
}

// HAL is the set of hardware operations used by the board.
type HAL interface {
	ConfigureClock(cfg ClockConfig) error
	ConfigurePin(p Pin, fn PinFunction) error
	StartADC(channel uint8) error
	ReadADC(channel uint8) (physic.ElectricPotential, error)
	// ArmAlarm arms the one-shot RTC alarm. The channel fires once.
	ArmAlarm(d time.Duration) (<-chan time.Time, error)
	// EnterLowPowerWait suspends the caller until the wake signal is raised,
	// timer fires or ctx is done. A nil timer never fires.
	EnterLowPowerWait(ctx context.Context, wake *Wake, timer <-chan time.Time) (WakeSource, error)
	Reset() error
}

// Wait is the host implementation of a low-power wait. Implementations
// without a real sleep mode use it directly.
func Wait(ctx context.Context, wake *Wake, timer <-chan time.Time) (WakeSource, error) {
	select {
	case <-ctx.Done():
		return WakeInterrupt, ctx.Err()
	case <-wake.C():
		return WakeInterrupt, nil
	case <-timer:
		return WakeTimer, nil
	}
}
