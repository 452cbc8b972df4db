// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package tinyproto

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame counts and error rates of a byte stream
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames       uint64
	Telecommands      uint64
	TelemetryRequests uint64
	CRCErrors         uint64
	UnknownSelectors  uint64
	HandlerErrors     uint64
	DiscardedBytes    uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one ParseByte call that produced a frame or
// an error. Calls with neither are ignored.
func (s *Statistics) Update(frame *Frame, err error) {
	if frame == nil && err == nil {
		return
	}
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	switch {
	case errors.Is(err, ErrCRCMismatch):
		s.CRCErrors++
		return
	case errors.Is(err, ErrInvalidTelecommand), errors.Is(err, ErrInvalidTelemetryChannel):
		s.UnknownSelectors++
		return
	case err != nil && frame == nil:
		s.HandlerErrors++
		return
	case err != nil:
		s.HandlerErrors++
	}

	if frame.IsTelemetry() {
		s.TelemetryRequests++
	} else {
		s.Telecommands++
	}
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.CRCErrors + s.UnknownSelectors + s.HandlerErrors
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, crcPercent, unknownPercent float64
	if s.TotalFrames > 0 {
		valid := s.Telecommands + s.TelemetryRequests
		validPercent = float64(valid) * 100.0 / float64(s.TotalFrames)
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(s.TotalFrames)
		unknownPercent = float64(s.UnknownSelectors) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.Telecommands+s.TelemetryRequests, validPercent)
	result += fmt.Sprintf("  Telecommands:     %5d\n", s.Telecommands)
	result += fmt.Sprintf("  Telemetry Reqs:   %5d\n", s.TelemetryRequests)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	if s.UnknownSelectors > 0 {
		result += fmt.Sprintf("Unknown IDs:     %8d (%.1f%%)\n", s.UnknownSelectors, unknownPercent)
	}
	if s.HandlerErrors > 0 {
		result += fmt.Sprintf("Handler Errors:  %8d\n", s.HandlerErrors)
	}
	if s.DiscardedBytes > 0 {
		result += fmt.Sprintf("Discarded Bytes: %8d\n", s.DiscardedBytes)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
