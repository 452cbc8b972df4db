// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package busbridge carries I2C transactions over a byte stream such as a
// serial port or a WebSocket. Every message is a CBOR array
// [msg_type, body_map] where body_map uses integer keys.
package busbridge

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Message types
const (
	MsgTx       uint8 = 0x01
	MsgSetSpeed uint8 = 0x02
	MsgResult   uint8 = 0x80
)

// Result codes
const (
	ResultOK uint8 = iota
	ResultNACK
	ResultError
)

// MaxReadLen bounds a single read phase.
const MaxReadLen = 256

var (
	ErrNACK           = errors.New("address not acknowledged")
	ErrRemote         = errors.New("remote bus error")
	ErrUnexpectedType = errors.New("unexpected message type")
	ErrSequence       = errors.New("response sequence mismatch")
	ErrReadTooLong    = errors.New("read length out of range")
)

// BusError is returned for any failed bridge operation.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("busbridge %s: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// Request is the body of MsgTx and MsgSetSpeed.
type Request struct {
	Seq     uint32 `cbor:"0,keyasint"`
	Addr    uint16 `cbor:"1,keyasint,omitempty"`
	Write   []byte `cbor:"2,keyasint,omitempty"`
	ReadLen int    `cbor:"3,keyasint,omitempty"`
	SpeedHz int64  `cbor:"4,keyasint,omitempty"`
}

// Response is the body of MsgResult.
type Response struct {
	Seq    uint32 `cbor:"0,keyasint"`
	Result uint8  `cbor:"1,keyasint"`
	Read   []byte `cbor:"2,keyasint,omitempty"`
	Error  string `cbor:"3,keyasint,omitempty"`
}

// Err converts the result code back into an error.
func (r *Response) Err() error {
	switch r.Result {
	case ResultOK:
		return nil
	case ResultNACK:
		return ErrNACK
	default:
		if r.Error != "" {
			return fmt.Errorf("%w: %s", ErrRemote, r.Error)
		}
		return ErrRemote
	}
}

type envelope struct {
	_    struct{} `cbor:",toarray"`
	Type uint8
	Body cbor.RawMessage
}

// Codec reads and writes bridge messages on a stream.
type Codec struct {
	enc *cbor.Encoder
	dec *cbor.Decoder
}

// NewCodec wraps rw.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{
		enc: cbor.NewEncoder(rw),
		dec: cbor.NewDecoder(rw),
	}
}

// Write encodes body as a message of type msgType.
func (c *Codec) Write(msgType uint8, body any) error {
	raw, err := cbor.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	return c.enc.Encode(envelope{Type: msgType, Body: raw})
}

// Read decodes the next message and returns its type with the raw body.
func (c *Codec) Read() (uint8, cbor.RawMessage, error) {
	var env envelope
	if err := c.dec.Decode(&env); err != nil {
		return 0, nil, err
	}
	return env.Type, env.Body, nil
}
