// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package hal

// Wake is a single-slot signal from interrupt context to the main loop.
// Raising it while already raised is a no-op, so it never blocks.
type Wake struct {
	ch chan struct{}
}

// NewWake creates a lowered wake signal.
func NewWake() *Wake {
	return &Wake{ch: make(chan struct{}, 1)}
}

// Notify raises the signal (wakeFromInterrupt).
func (w *Wake) Notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C returns the channel that receives once per raised signal.
func (w *Wake) C() <-chan struct{} {
	return w.ch
}

// Pending reports whether the signal is raised without consuming it.
func (w *Wake) Pending() bool {
	return len(w.ch) > 0
}
