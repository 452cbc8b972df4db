// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package tinyproto

import "errors"

var (
	ErrInvalidCommandID         = errors.New("tinyproto: invalid command id")
	ErrChannelAlreadyRegistered = errors.New("tinyproto: id already registered")
	ErrPayloadTooLarge          = errors.New("tinyproto: payload too large")
	ErrOverflow                 = errors.New("tinyproto: telemetry read past end of channel")
	ErrCRCMismatch              = errors.New("tinyproto: CRC mismatch")
	ErrInvalidTelemetryChannel  = errors.New("tinyproto: telemetry channel not registered")
	ErrInvalidTelecommand       = errors.New("tinyproto: telecommand not registered")
	ErrNoChannelSelected        = errors.New("tinyproto: no telemetry channel selected")
	ErrShortFrame               = errors.New("tinyproto: frame body has wrong length")
)
