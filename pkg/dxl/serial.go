// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes a local serial bus adapter.
type SerialConfig struct {
	Device          string
	BaudRate        int
	Direction       DirectionMode
	InvertDirection bool
	Timeout         time.Duration
}

// DefaultSerialConfig returns the factory defaults of most servos: 57600 baud,
// RTS as transmit enable.
func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{
		Device:    device,
		BaudRate:  57600,
		Direction: DirectionRTS,
		Timeout:   DefaultTimeout,
	}
}

// OpenSerial opens a serial port (8N1) and wraps it in a SerialTransport.
// The direction line is released before the transport is returned.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	dir, err := NewDirection(cfg.Direction, port, cfg.InvertDirection)
	if err != nil {
		port.Close()
		return nil, err
	}
	if err := dir.SetTransmit(false); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to release bus on %s: %w", cfg.Device, err)
	}

	return NewSerialTransport(port, dir, cfg.Timeout, cfg.BaudRate), nil
}
