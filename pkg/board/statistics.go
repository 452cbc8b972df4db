// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

import (
	"fmt"
	"time"
)

// Counters tracks transfer activity of the engine
type Counters struct {
	Commands         uint64 // completed commands handed to the main loop
	Responses        uint64 // responses fully clocked out
	Rejected         uint64
	Overruns         uint64
	Timeouts         uint64
	Stops            uint64
	TxUnderruns      uint64
	StaleResponses   uint64 // responses dropped because a newer command began
	BytesReceived    uint64
	BytesTransmitted uint64
	BytesDrained     uint64
}

// Errors returns the number of failed transfers.
func (c Counters) Errors() uint64 {
	return c.Rejected + c.Overruns + c.Timeouts
}

// Rates derives per-second figures over elapsed.
func (c Counters) Rates(elapsed time.Duration) (commandRate, errorRate float64) {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0, 0
	}
	return float64(c.Commands) / secs, float64(c.Errors()) / secs
}

// String returns a formatted statistics summary
func (s Snapshot) String() string {
	c := s.Counters

	var rejectPercent float64
	if attempts := c.Commands + c.Rejected; attempts > 0 {
		rejectPercent = float64(c.Rejected) * 100.0 / float64(attempts)
	}

	result := "=== Session ===\n"
	result += fmt.Sprintf("Mode:            %s\n", s.Mode)
	result += fmt.Sprintf("Status:          %s\n", s.Status)
	result += fmt.Sprintf("Commands:        %8d\n", c.Commands)
	result += fmt.Sprintf("Responses:       %8d\n", c.Responses)

	if c.Rejected > 0 {
		result += fmt.Sprintf("Rejected:        %8d (%.1f%%)\n", c.Rejected, rejectPercent)
	}
	if c.Overruns > 0 {
		result += fmt.Sprintf("Overruns:        %8d\n", c.Overruns)
	}
	if c.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", c.Timeouts)
	}
	if c.TxUnderruns > 0 {
		result += fmt.Sprintf("TX Underruns:    %8d\n", c.TxUnderruns)
	}
	if c.StaleResponses > 0 {
		result += fmt.Sprintf("Stale Responses: %8d\n", c.StaleResponses)
	}

	result += fmt.Sprintf("Bytes RX/TX:     %8d / %d\n", c.BytesReceived, c.BytesTransmitted)
	result += fmt.Sprintf("Stops:           %8d\n", c.Stops)
	result += "===============\n"

	return result
}
