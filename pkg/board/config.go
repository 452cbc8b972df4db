// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"time"

	"github.com/Thermoquad/pdslink/pkg/hal"
)

// DefaultAddress is the board's 7-bit slave address.
const DefaultAddress = 0x08

// Config holds the board settings.
type Config struct {
	Address  uint16
	Framed   bool   // speak the framed protocol instead of the plain one
	Name     string // reported by HEALTH_CHECK, at most 12 bytes
	Revision byte

	// Countdown delays bus enable after boot. Zero skips it.
	Countdown time.Duration
	// TransferTimeout forces a stalled transfer back to idle.
	TransferTimeout time.Duration
	// WatchdogInterval is how often the main loop checks for stalls.
	WatchdogInterval time.Duration
	// RebootDelay bounds how long a reset waits for the response to be read.
	RebootDelay time.Duration

	ConverterChannels uint8

	Clock hal.ClockConfig
	SDA   hal.Pin
	SCL   hal.Pin
}

// DefaultConfig returns the flight configuration.
func DefaultConfig() Config {
	return Config{
		Address:           DefaultAddress,
		Name:              "PDS-TQ",
		Revision:          '2',
		Countdown:         30 * time.Minute,
		TransferTimeout:   50 * time.Millisecond,
		WatchdogInterval:  10 * time.Millisecond,
		RebootDelay:       100 * time.Millisecond,
		ConverterChannels: 4,
		Clock:             hal.DefaultClock,
		SDA:               hal.Pin{Port: 1, Bit: 6},
		SCL:               hal.Pin{Port: 1, Bit: 7},
	}
}
