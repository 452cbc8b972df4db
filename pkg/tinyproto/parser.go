// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package tinyproto

// Handler receives validated frames from a Parser.
type Handler interface {
	ProcessTelecommand(id byte, payload []byte) error
	ProcessTelemetryRequest(channel byte) error
}

// Parser implements the frame receiver state machine. Each byte causes one
// state transition and at most one Handler call.
type Parser struct {
	reg     *Registry
	handler Handler

	state     int
	selector  byte
	remaining int
	buffer    [MaxPacketSize]byte
	index     int

	discarded uint64
}

// NewParser creates a parser bound to a registry and handler.
func NewParser(reg *Registry, h Handler) *Parser {
	return &Parser{reg: reg, handler: h, state: stateIdle}
}

// Reset returns the parser to idle.
func (p *Parser) Reset() {
	p.state = stateIdle
	p.selector = 0
	p.remaining = 0
	p.index = 0
}

// Discarded returns the number of bytes dropped while waiting for the magic.
func (p *Parser) Discarded() uint64 {
	return p.discarded
}

// ParseByte feeds one byte through the state machine. It returns the frame
// when one completes, and an error when a frame is rejected. Rejections are
// also recorded on the registry's ACK channel.
func (p *Parser) ParseByte(b byte) (*Frame, error) {
	switch p.state {
	case stateIdle:
		if b == Magic {
			p.state = stateExpectSelector
		} else {
			p.discarded++
		}
		return nil, nil

	case stateExpectSelector:
		remaining, err := p.reg.Begin(b)
		if err != nil {
			p.Reset()
			return nil, err
		}
		p.selector = b
		p.remaining = remaining
		p.index = 0
		if IsTelemetry(b) {
			p.state = stateExpectTelemetryCRC
		} else {
			p.state = stateExpectTelecommand
		}
		return nil, nil

	case stateExpectTelemetryCRC, stateExpectTelecommand:
		p.buffer[p.index] = b
		p.index++
		p.remaining--
		if p.remaining > 0 {
			return nil, nil
		}
		return p.finish()
	}

	p.Reset()
	return nil, nil
}

// finish validates the collected body and calls the handler.
func (p *Parser) finish() (*Frame, error) {
	selector := p.selector
	body := p.buffer[:p.index]
	p.Reset()

	f, err := p.reg.Finish(selector, body)
	if err != nil {
		return nil, err
	}
	// The payload aliases the parser buffer; hand out a stable copy.
	if f.Payload != nil {
		f.Payload = append([]byte(nil), f.Payload...)
	}

	if p.handler != nil {
		if f.IsTelemetry() {
			err = p.handler.ProcessTelemetryRequest(f.ID())
		} else {
			err = p.handler.ProcessTelecommand(f.ID(), f.Payload)
		}
		if err != nil {
			return &f, err
		}
	}
	p.reg.Complete()
	return &f, nil
}
