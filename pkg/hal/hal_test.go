// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package hal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWake_SingleSlot(t *testing.T) {
	w := NewWake()
	if w.Pending() {
		t.Fatal("new wake signal is raised")
	}

	// repeated notifications collapse into one
	w.Notify()
	w.Notify()
	w.Notify()
	if !w.Pending() {
		t.Fatal("signal not raised after Notify")
	}
	<-w.C()
	if w.Pending() {
		t.Error("signal still raised after one receive")
	}
}

func TestWait(t *testing.T) {
	t.Run("interrupt", func(t *testing.T) {
		w := NewWake()
		w.Notify()
		src, err := Wait(context.Background(), w, nil)
		if err != nil || src != WakeInterrupt {
			t.Errorf("got %s, %v; want interrupt", src, err)
		}
	})

	t.Run("timer", func(t *testing.T) {
		timer := make(chan time.Time, 1)
		timer <- time.Now()
		src, err := Wait(context.Background(), NewWake(), timer)
		if err != nil || src != WakeTimer {
			t.Errorf("got %s, %v; want timer", src, err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := Wait(ctx, NewWake(), nil); !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	})
}

func TestPinString(t *testing.T) {
	if s := (Pin{Port: 1, Bit: 6}).String(); s != "P1.6" {
		t.Errorf("got %q", s)
	}
	if s := PinI2CSCL.String(); s != "i2c-scl" {
		t.Errorf("got %q", s)
	}
}
