// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package busbridge

import (
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Client is an i2c.Bus whose transactions run on a remote Server.
type Client struct {
	mu    sync.Mutex
	name  string
	conn  io.ReadWriter
	codec *Codec
	seq   uint32
}

var _ i2c.BusCloser = (*Client)(nil)

// NewClient creates a bus client on conn. name is reported by String.
func NewClient(conn io.ReadWriter, name string) *Client {
	return &Client{name: name, conn: conn, codec: NewCodec(conn)}
}

func (c *Client) String() string {
	return "bridge(" + c.name + ")"
}

func (c *Client) Tx(addr uint16, w, r []byte) error {
	if len(r) > MaxReadLen {
		return &BusError{Op: "tx", Err: ErrReadTooLong}
	}
	resp, err := c.roundTrip("tx", MsgTx, Request{Addr: addr, Write: w, ReadLen: len(r)})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return &BusError{Op: "tx", Err: err}
	}
	if len(resp.Read) != len(r) {
		return &BusError{Op: "tx", Err: fmt.Errorf("short read: got %d bytes, want %d", len(resp.Read), len(r))}
	}
	copy(r, resp.Read)
	return nil
}

func (c *Client) SetSpeed(f physic.Frequency) error {
	resp, err := c.roundTrip("speed", MsgSetSpeed, Request{SpeedHz: int64(f / physic.Hertz)})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return &BusError{Op: "speed", Err: err}
	}
	return nil
}

// Close closes the underlying connection when it is an io.Closer.
func (c *Client) Close() error {
	if closer, ok := c.conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Client) roundTrip(op string, msgType uint8, req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	req.Seq = c.seq
	if err := c.codec.Write(msgType, req); err != nil {
		return nil, &BusError{Op: op, Err: err}
	}

	typ, body, err := c.codec.Read()
	if err != nil {
		return nil, &BusError{Op: op, Err: err}
	}
	if typ != MsgResult {
		return nil, &BusError{Op: op, Err: fmt.Errorf("%w: 0x%02X", ErrUnexpectedType, typ)}
	}
	var resp Response
	if err := cbor.Unmarshal(body, &resp); err != nil {
		return nil, &BusError{Op: op, Err: err}
	}
	if resp.Seq != req.Seq {
		return nil, &BusError{Op: op, Err: fmt.Errorf("%w: got %d, want %d", ErrSequence, resp.Seq, req.Seq)}
	}
	glog.V(2).Infof("bridge %s: seq=%d result=%d", op, resp.Seq, resp.Result)
	return &resp, nil
}
