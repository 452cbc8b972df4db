// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package board

// Protocol decides what received bytes mean. The engine calls OnCommandByte
// from interrupt context and the scheduler calls OnPayloadComplete from the
// main loop. Both Dispatcher (plain) and Framed implement it.
type Protocol interface {
	// Magic returns the frame start byte, if the protocol has one.
	Magic() (byte, bool)

	// OnCommandByte is given the command byte (or framed selector) and returns
	// how many bytes follow it. It must not block.
	OnCommandByte(id byte) (int, error)

	// OnPayloadComplete handles a completed command and writes the response
	// into resp, returning its length. Zero means nothing to transmit.
	OnPayloadComplete(cmd Command, resp []byte) (int, error)
}
