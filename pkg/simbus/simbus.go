// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package simbus is an in-process I2C bus. It implements periph's i2c.Bus
// and delivers each transaction to attached targets as the start, byte and
// stop events a slave peripheral would raise.
package simbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

var (
	ErrNACK         = errors.New("simbus: address not acknowledged")
	ErrAddressInUse = errors.New("simbus: address already attached")
	ErrClosed       = errors.New("simbus: bus closed")
	ErrBadAddress   = errors.New("simbus: 10-bit addressing not supported")
)

// Target is the slave side of the bus. board.Engine implements it.
type Target interface {
	OnStart(read bool) bool
	OnReceive(b byte)
	OnTransmitReady() byte
	OnStop()
}

// TraceFunc observes every transaction after it completes.
type TraceFunc func(addr uint16, w, r []byte, err error)

// Bus serializes transactions the way a single master would.
type Bus struct {
	mu      sync.Mutex
	name    string
	targets map[uint16]Target
	speed   physic.Frequency
	closed  bool
	trace   TraceFunc
}

var _ i2c.BusCloser = (*Bus)(nil)

// New creates an empty bus running at 100kHz.
func New(name string) *Bus {
	return &Bus{
		name:    name,
		targets: make(map[uint16]Target),
		speed:   100 * physic.KiloHertz,
	}
}

// Attach connects t at addr.
func (b *Bus) Attach(addr uint16, t Target) error {
	if addr > 0x7F {
		return fmt.Errorf("0x%03X: %w", addr, ErrBadAddress)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.targets[addr]; ok {
		return fmt.Errorf("0x%02X: %w", addr, ErrAddressInUse)
	}
	b.targets[addr] = t
	return nil
}

// Detach removes the target at addr.
func (b *Bus) Detach(addr uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.targets, addr)
}

// SetTrace installs a transaction observer.
func (b *Bus) SetTrace(fn TraceFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trace = fn
}

func (b *Bus) String() string {
	return b.name
}

// Tx runs a write phase, then after a repeated start a read phase, then a
// stop. A NACKed address aborts with ErrNACK.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.txLocked(addr, w, r)
	glog.V(2).Infof("simbus %s: 0x%02X w=% X r=% X err=%v", b.name, addr, w, r, err)
	if b.trace != nil {
		b.trace(addr, w, r, err)
	}
	return err
}

func (b *Bus) txLocked(addr uint16, w, r []byte) error {
	if b.closed {
		return ErrClosed
	}
	t, ok := b.targets[addr]
	if !ok {
		return fmt.Errorf("0x%02X: %w", addr, ErrNACK)
	}
	defer t.OnStop()

	if len(w) > 0 || len(r) == 0 {
		if !t.OnStart(false) {
			return fmt.Errorf("0x%02X write: %w", addr, ErrNACK)
		}
		for _, c := range w {
			t.OnReceive(c)
		}
	}
	if len(r) > 0 {
		if !t.OnStart(true) {
			return fmt.Errorf("0x%02X read: %w", addr, ErrNACK)
		}
		for i := range r {
			r[i] = t.OnTransmitReady()
		}
	}
	return nil
}

func (b *Bus) SetSpeed(f physic.Frequency) error {
	if f <= 0 || f > 1*physic.MegaHertz {
		return fmt.Errorf("simbus: unsupported speed %s", f)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speed = f
	return nil
}

// Speed returns the configured bus speed.
func (b *Bus) Speed() physic.Frequency {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
