// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"errors"
	"fmt"
)

// Sentinel errors. Decode and transaction failures wrap one of these, so
// callers should test with errors.Is.
var (
	ErrTimeout        = errors.New("dxl: reply timeout")
	ErrBadMarker      = errors.New("dxl: bad frame marker")
	ErrFrameTooShort  = errors.New("dxl: frame too short")
	ErrLengthMismatch = errors.New("dxl: length mismatch")
	ErrIntegrity      = errors.New("dxl: integrity check failed")
	ErrTransport      = errors.New("dxl: transport failure")
	ErrNotStatus      = errors.New("dxl: frame is not a status frame")
	ErrIDMismatch     = errors.New("dxl: reply from unexpected id")
	ErrPacketTooLarge = errors.New("dxl: packet too large")
	ErrAddressRange   = errors.New("dxl: address or length out of range")
	ErrUnsupported    = errors.New("dxl: instruction not supported by revision")
	ErrConfig         = errors.New("dxl: invalid configuration")
	ErrUnknownModel   = errors.New("dxl: unknown model")
	ErrUnknownField   = errors.New("dxl: unknown field")
	ErrReadOnly       = errors.New("dxl: field is read-only")
)

// TransportError wraps a failure reported by the underlying port.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dxl: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) hold for every TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func transportErr(op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// AlarmError reports a hardware alarm carried by an otherwise valid status.
type AlarmError struct {
	ID    uint8
	Alarm Alarm
}

func (e *AlarmError) Error() string {
	return fmt.Sprintf("dxl: id %d reports alarm: %s", e.ID, e.Alarm)
}
