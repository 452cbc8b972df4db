// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/Thermoquad/pdslink/pkg/board"
	"github.com/Thermoquad/pdslink/pkg/busbridge"
	"github.com/Thermoquad/pdslink/pkg/hal/stub"
	"github.com/Thermoquad/pdslink/pkg/obc"
	"github.com/Thermoquad/pdslink/pkg/simbus"
)

// simVoltages seeds the simulated converter channels
var simVoltages = []physic.ElectricPotential{
	3300 * physic.MilliVolt,
	5 * physic.Volt,
	12 * physic.Volt,
	28 * physic.Volt,
}

// simBoard is a board running its main loop on a simulated bus
type simBoard struct {
	bus    *simbus.Bus
	board  *board.Board
	hal    *stub.HAL
	cancel context.CancelFunc
	done   chan error
}

// simConfig returns the board config implied by the global flags
func simConfig(countdown time.Duration) board.Config {
	cfg := board.DefaultConfig()
	cfg.Address = boardAddr
	cfg.Framed = framed
	cfg.Countdown = countdown
	return cfg
}

// startSimBoard attaches a board to a fresh simulated bus and runs it
func startSimBoard(cfg board.Config) (*simBoard, error) {
	h := stub.New()
	for ch, v := range simVoltages {
		h.SetADC(uint8(ch), v)
	}
	b, err := board.New(cfg, h, nil)
	if err != nil {
		return nil, err
	}
	bus := simbus.New("simbus")
	if err := bus.Attach(b.Address(), b.Engine()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &simBoard{bus: bus, board: b, hal: h, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- b.Run(ctx) }()
	return s, nil
}

// waitReady blocks until the countdown is over
func (s *simBoard) waitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for s.board.State() == board.StateCountdown {
		if time.Now().After(deadline) {
			return fmt.Errorf("board still counting down after %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// stop ends the main loop and detaches the board
func (s *simBoard) stop() error {
	s.cancel()
	err := <-s.done
	s.bus.Detach(s.board.Address())
	return err
}

// simBus closes its board together with the bus
type simBus struct {
	*simbus.Bus
	sim *simBoard
}

func (b *simBus) Close() error {
	return errors.Join(b.sim.stop(), b.Bus.Close())
}

// openBus opens the bus selected by the global flags. sim is nil unless
// the bus is simulated.
func openBus() (bus i2c.BusCloser, info string, sim *simBoard, err error) {
	switch {
	case simulated:
		sim, err = startSimBoard(simConfig(0))
		if err != nil {
			return nil, "", nil, err
		}
		if err := sim.waitReady(time.Second); err != nil {
			_ = sim.stop()
			return nil, "", nil, err
		}
		return &simBus{Bus: sim.bus, sim: sim}, "Simulated board", sim, nil

	case haveConnection():
		conn, connInfo, err := OpenConnection()
		if err != nil {
			return nil, "", nil, err
		}
		return busbridge.NewClient(conn, connInfo), "Bridge: " + connInfo, nil, nil

	default:
		if _, err := host.Init(); err != nil {
			return nil, "", nil, fmt.Errorf("failed to initialize host drivers: %w", err)
		}
		b, err := i2creg.Open(busName)
		if err != nil {
			return nil, "", nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
		}
		glog.V(1).Infof("opened I2C bus %s", b)
		return b, fmt.Sprintf("I2C: %s", b), nil, nil
	}
}

// openClient opens the selected bus and returns an OBC client for the board
func openClient() (*obc.Client, i2c.BusCloser, string, error) {
	bus, info, _, err := openBus()
	if err != nil {
		return nil, nil, "", err
	}
	c := obc.New(bus, &obc.Opts{Addr: boardAddr, Framed: framed}, nil)
	return c, bus, info, nil
}
