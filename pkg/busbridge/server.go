// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package busbridge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// NACKFunc reports whether a bus error means the address was not
// acknowledged. The default only recognizes ErrNACK.
type NACKFunc func(error) bool

// Server executes bridge requests on a local bus.
type Server struct {
	bus    i2c.Bus
	isNACK NACKFunc
}

// NewServer creates a server for bus. isNACK may be nil.
func NewServer(bus i2c.Bus, isNACK NACKFunc) *Server {
	if isNACK == nil {
		isNACK = func(err error) bool { return errors.Is(err, ErrNACK) }
	}
	return &Server{bus: bus, isNACK: isNACK}
}

// Serve answers requests from rw until the stream ends or ctx is cancelled.
// A clean end of stream returns nil.
func (s *Server) Serve(ctx context.Context, rw io.ReadWriter) error {
	codec := NewCodec(rw)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		typ, body, err := codec.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &BusError{Op: "read", Err: err}
		}

		var req Request
		if err := cbor.Unmarshal(body, &req); err != nil {
			return &BusError{Op: "decode", Err: err}
		}
		resp := s.handle(typ, req)
		if err := codec.Write(MsgResult, resp); err != nil {
			return &BusError{Op: "write", Err: err}
		}
	}
}

func (s *Server) handle(typ uint8, req Request) Response {
	resp := Response{Seq: req.Seq}
	var err error

	switch typ {
	case MsgTx:
		if req.ReadLen < 0 || req.ReadLen > MaxReadLen {
			err = ErrReadTooLong
			break
		}
		var r []byte
		if req.ReadLen > 0 {
			r = make([]byte, req.ReadLen)
		}
		if err = s.bus.Tx(req.Addr, req.Write, r); err == nil {
			resp.Read = r
		}
		glog.V(1).Infof("bridge tx 0x%02X w=% X r=% X err=%v", req.Addr, req.Write, r, err)
	case MsgSetSpeed:
		err = s.bus.SetSpeed(physic.Frequency(req.SpeedHz) * physic.Hertz)
	default:
		err = fmt.Errorf("%w: 0x%02X", ErrUnexpectedType, typ)
	}

	switch {
	case err == nil:
		resp.Result = ResultOK
	case s.isNACK(err):
		resp.Result = ResultNACK
	default:
		resp.Result = ResultError
		resp.Error = err.Error()
	}
	return resp
}
