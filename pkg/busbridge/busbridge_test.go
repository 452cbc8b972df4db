// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package busbridge

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/Thermoquad/pdslink/pkg/simbus"
)

// echoTarget answers reads with the last byte written plus the byte index
type echoTarget struct {
	last byte
	i    byte
}

func (e *echoTarget) OnStart(read bool) bool { e.i = 0; return true }
func (e *echoTarget) OnReceive(b byte)       { e.last = b }
func (e *echoTarget) OnTransmitReady() byte  { e.i++; return e.last + e.i - 1 }
func (e *echoTarget) OnStop()                {}

// startBridge connects a client to a server for bus over an in-memory pipe
func startBridge(t *testing.T, bus i2c.Bus) *Client {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	srv := NewServer(bus, func(err error) bool { return errors.Is(err, simbus.ErrNACK) })

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), serverSide) }()

	client := NewClient(clientSide, "pipe")
	t.Cleanup(func() {
		client.Close()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return client
}

func TestBridge_Tx(t *testing.T) {
	bus := simbus.New("sim")
	if err := bus.Attach(0x08, &echoTarget{}); err != nil {
		t.Fatal(err)
	}
	client := startBridge(t, bus)

	dev := &i2c.Dev{Bus: client, Addr: 0x08}
	r := make([]byte, 3)
	if err := dev.Tx([]byte{0x40}, r); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x40, 0x41, 0x42}, r); diff != "" {
		t.Errorf("read (-want +got):\n%s", diff)
	}

	// write-only transaction
	if err := dev.Tx([]byte{0x01}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestBridge_NACK(t *testing.T) {
	client := startBridge(t, simbus.New("sim"))

	err := client.Tx(0x21, []byte{0x00}, nil)
	if !errors.Is(err, ErrNACK) {
		t.Fatalf("got %v, want ErrNACK", err)
	}
	var be *BusError
	if !errors.As(err, &be) || be.Op != "tx" {
		t.Errorf("error = %#v", err)
	}
}

func TestBridge_SetSpeed(t *testing.T) {
	bus := simbus.New("sim")
	client := startBridge(t, bus)

	if err := client.SetSpeed(400 * physic.KiloHertz); err != nil {
		t.Fatal(err)
	}
	if bus.Speed() != 400*physic.KiloHertz {
		t.Errorf("remote speed = %s", bus.Speed())
	}

	err := client.SetSpeed(5 * physic.MegaHertz)
	if !errors.Is(err, ErrRemote) {
		t.Errorf("got %v, want ErrRemote", err)
	}
}

func TestBridge_ReadTooLong(t *testing.T) {
	client := NewClient(&bytes.Buffer{}, "buf")
	if err := client.Tx(0x08, nil, make([]byte, MaxReadLen+1)); !errors.Is(err, ErrReadTooLong) {
		t.Errorf("got %v", err)
	}
}

func TestCodec_Envelope(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf)
	req := Request{Seq: 7, Addr: 0x08, Write: []byte{0x9B, 0x01}, ReadLen: 2}
	if err := codec.Write(MsgTx, req); err != nil {
		t.Fatal(err)
	}

	// [msg_type, {0: seq, 1: addr, 2: write, 3: readlen}]
	want := []byte{0x82, 0x01, 0xA4, 0x00, 0x07, 0x01, 0x08, 0x02, 0x42, 0x9B, 0x01, 0x03, 0x02}
	if diff := cmp.Diff(want, buf.Bytes()); diff != "" {
		t.Errorf("encoding (-want +got):\n%s", diff)
	}
}

func TestResponse_Err(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want error
	}{
		{"ok", Response{Result: ResultOK}, nil},
		{"nack", Response{Result: ResultNACK}, ErrNACK},
		{"remote", Response{Result: ResultError, Error: "boom"}, ErrRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.resp.Err(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}
