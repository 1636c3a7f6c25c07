// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"fmt"
	"time"
)

// Frame is a frame observed on the bus by a Sniffer. Requests and status
// frames share a layout; Code holds the instruction or the error byte.
type Frame struct {
	Revision  Revision
	ID        uint8
	Code      uint8
	Params    []byte
	Raw       []byte
	Timestamp time.Time
}

// IsStatus reports whether the frame is a status frame. Only v2 frames carry
// enough information to tell; v1 frames always report false.
func (f *Frame) IsStatus() bool {
	return f.Revision == V2 && f.Code == uint8(InstStatus)
}

// Result is one outcome of feeding bytes to a Sniffer: a frame or a decode
// error.
type Result struct {
	Frame *Frame
	Err   error
}

// Decoder states (internal)
const (
	stateIdle = iota
	stateHeader
	stateBody
)

// Sniffer is a passive byte-at-a-time frame decoder for bus monitoring.
// It resynchronizes on the next header after garbage or a bad frame.
type Sniffer struct {
	rev    Revision
	state  int
	buffer []byte
	need   int
}

// NewSniffer creates a bus monitor decoder for the given revision
func NewSniffer(rev Revision) *Sniffer {
	return &Sniffer{
		rev:    rev,
		state:  stateIdle,
		buffer: make([]byte, 0, MaxPacketSizeV2),
	}
}

// Reset resets the decoder state to idle
func (d *Sniffer) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.need = 0
}

// prefix returns the fixed leading bytes of a frame
func (d *Sniffer) prefix() []byte {
	if d.rev == V1 {
		return []byte{headerByte, headerByte}
	}
	return []byte{headerByte, headerByte, markerV2, reservedV2}
}

// Feed runs data through the decoder and returns the frames and errors it
// completed, in bus order. A rejected frame is rescanned from its second
// byte, so a frame hidden inside the bytes of a bad one is still found.
func (d *Sniffer) Feed(data []byte) []Result {
	var out []Result
	for _, b := range data {
		out = d.step(b, out)
	}
	return out
}

func (d *Sniffer) step(b byte, out []Result) []Result {
	frame, rejected, err := d.decodeByte(b)
	switch {
	case err != nil:
		out = append(out, Result{Err: err})
		if len(rejected) > 1 {
			for _, rb := range rejected[1:] {
				out = d.step(rb, out)
			}
		}
	case frame != nil:
		out = append(out, Result{Frame: frame})
	}
	return out
}

// decodeByte advances the state machine by one byte. On error it returns the
// bytes of the rejected frame.
func (d *Sniffer) decodeByte(b byte) (*Frame, []byte, error) {
	switch d.state {
	case stateIdle:
		prefix := d.prefix()
		n := len(d.buffer)
		if b == prefix[n] {
			d.buffer = append(d.buffer, b)
			if len(d.buffer) == len(prefix) {
				d.state = stateHeader
			}
			return nil, nil, nil
		}
		// FF FF FF ... keeps the last two bytes as a valid header start
		if b == headerByte && n == 2 {
			return nil, nil, nil
		}
		d.Reset()
		if b == prefix[0] {
			d.buffer = append(d.buffer, b)
		}
		return nil, nil, nil

	case stateHeader:
		// 0xFF is never a valid id, so a third FF still belongs to the marker
		if d.rev == V1 && len(d.buffer) == 2 && b == headerByte {
			return nil, nil, nil
		}
		d.buffer = append(d.buffer, b)
		if len(d.buffer) < HeaderSize(d.rev) {
			return nil, nil, nil
		}
		length, err := DeclaredLength(d.rev, d.buffer)
		if err != nil {
			rejected := append([]byte(nil), d.buffer...)
			d.Reset()
			return nil, rejected, err
		}
		d.need = HeaderSize(d.rev) + length
		d.state = stateBody
		return nil, nil, nil

	case stateBody:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) < d.need {
			return nil, nil, nil
		}
		raw := append([]byte(nil), d.buffer...)
		d.Reset()

		id, body, err := decodeFrame(d.rev, raw)
		if err != nil {
			return nil, raw, err
		}
		return &Frame{
			Revision:  d.rev,
			ID:        id,
			Code:      body[0],
			Params:    body[1:],
			Raw:       raw,
			Timestamp: time.Now(),
		}, nil, nil

	default:
		d.Reset()
		return nil, nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
