// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"fmt"
	"strings"
)

// Direction drives the transmit-enable line of a half-duplex transceiver.
type Direction interface {
	// SetTransmit switches the transceiver to transmit (true) or receive (false).
	SetTransmit(on bool) error
}

// RTSLine is implemented by serial ports that expose the RTS modem line.
type RTSLine interface {
	SetRTS(rts bool) error
}

// DTRLine is implemented by serial ports that expose the DTR modem line.
type DTRLine interface {
	SetDTR(dtr bool) error
}

// RTSDirection uses the RTS line as transmit enable.
type RTSDirection struct {
	Line     RTSLine
	Inverted bool // line low while transmitting
}

func (d RTSDirection) SetTransmit(on bool) error {
	return d.Line.SetRTS(on != d.Inverted)
}

// DTRDirection uses the DTR line as transmit enable.
type DTRDirection struct {
	Line     DTRLine
	Inverted bool
}

func (d DTRDirection) SetTransmit(on bool) error {
	return d.Line.SetDTR(on != d.Inverted)
}

// NoDirection is used with auto-direction transceivers and remote bridges,
// where nothing on the host side switches the bus.
type NoDirection struct{}

func (NoDirection) SetTransmit(bool) error { return nil }

// DirectionMode names a direction control method in configuration.
type DirectionMode string

// Direction modes
const (
	DirectionNone DirectionMode = "none"
	DirectionRTS  DirectionMode = "rts"
	DirectionDTR  DirectionMode = "dtr"
)

// ParseDirectionMode parses a direction mode name (case-insensitive).
func ParseDirectionMode(s string) (DirectionMode, error) {
	switch DirectionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DirectionNone, "auto":
		return DirectionNone, nil
	case DirectionRTS:
		return DirectionRTS, nil
	case DirectionDTR:
		return DirectionDTR, nil
	default:
		return "", fmt.Errorf("%w: unknown direction mode %q (use rts, dtr or none)", ErrConfig, s)
	}
}

// NewDirection builds the Direction for mode on a port that exposes the
// modem lines.
func NewDirection(mode DirectionMode, port interface{}, inverted bool) (Direction, error) {
	switch mode {
	case DirectionNone:
		return NoDirection{}, nil
	case DirectionRTS:
		line, ok := port.(RTSLine)
		if !ok {
			return nil, fmt.Errorf("%w: port has no RTS line", ErrConfig)
		}
		return RTSDirection{Line: line, Inverted: inverted}, nil
	case DirectionDTR:
		line, ok := port.(DTRLine)
		if !ok {
			return nil, fmt.Errorf("%w: port has no DTR line", ErrConfig)
		}
		return DTRDirection{Line: line, Inverted: inverted}, nil
	default:
		return nil, fmt.Errorf("%w: unknown direction mode %q", ErrConfig, mode)
	}
}
