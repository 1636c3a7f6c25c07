// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"fmt"
	"io"
	"time"
)

// Transport moves whole frames over the half-duplex bus. It is the only
// component that touches physical I/O.
type Transport interface {
	// WriteFrame transmits frame and returns once it has left the wire and the
	// bus is back in receive mode.
	WriteFrame(frame []byte) error
	// ReadExact blocks until n bytes arrive or the reply timeout elapses, in
	// which case the error wraps ErrTimeout.
	ReadExact(n int) ([]byte, error)
}

// Port is the byte channel under a SerialTransport. go.bug.st/serial ports
// satisfy it, so does WebSocketPort.
type Port interface {
	io.ReadWriteCloser
	// Drain blocks until all written bytes have been transmitted.
	Drain() error
	// SetReadTimeout bounds a single Read; Read returns 0, nil on expiry.
	SetReadTimeout(t time.Duration) error
	// ResetInputBuffer discards received but unread bytes.
	ResetInputBuffer() error
}

// Bus timing defaults
const (
	DefaultTimeout = 50 * time.Millisecond
	// Bits per transmitted character (start + 8 data + stop)
	BitsPerChar = 10
)

// BusTime returns the time it takes to transmit n characters at baud.
// A non-positive baud returns 0.
func BusTime(baud int, n int) time.Duration {
	if baud <= 0 || n <= 0 {
		return 0
	}
	ns := uint64(n) * BitsPerChar * uint64(time.Second) / uint64(baud)
	return time.Duration(ns)
}

// SerialTransport implements Transport over a Port plus a Direction line.
// It is not safe for concurrent use.
type SerialTransport struct {
	port    Port
	dir     Direction
	timeout time.Duration
	baud    int
}

// NewSerialTransport creates a transport. timeout bounds every ReadExact,
// extended by the bus time of the requested bytes when baud is known.
func NewSerialTransport(port Port, dir Direction, timeout time.Duration, baud int) *SerialTransport {
	if dir == nil {
		dir = NoDirection{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SerialTransport{
		port:    port,
		dir:     dir,
		timeout: timeout,
		baud:    baud,
	}
}

// Port returns the underlying port, e.g. for passive bus monitoring.
func (t *SerialTransport) Port() Port {
	return t.port
}

// Timeout returns the configured reply timeout.
func (t *SerialTransport) Timeout() time.Duration {
	return t.timeout
}

// WriteFrame discards stale input, asserts transmit enable, writes frame,
// waits for the UART to drain and releases the bus. The release happens on
// every path, including write failures.
func (t *SerialTransport) WriteFrame(frame []byte) (err error) {
	if err := t.port.ResetInputBuffer(); err != nil {
		return transportErr("flush", err)
	}

	if err := t.dir.SetTransmit(true); err != nil {
		return transportErr("direction", err)
	}
	defer func() {
		if derr := t.dir.SetTransmit(false); derr != nil && err == nil {
			err = transportErr("direction", derr)
		}
	}()

	written := 0
	for written < len(frame) {
		n, werr := t.port.Write(frame[written:])
		written += n
		if werr != nil {
			return transportErr("write", werr)
		}
		if n == 0 {
			return transportErr("write", io.ErrShortWrite)
		}
	}

	// Transmit enable must stay asserted until the last stop bit is out
	if err := t.port.Drain(); err != nil {
		return transportErr("drain", err)
	}
	return nil
}

// ReadExact reads exactly n bytes or fails with ErrTimeout once the reply
// deadline passes. Partial data is returned along with the timeout.
func (t *SerialTransport) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	deadline := time.Now().Add(t.timeout + BusTime(t.baud, n))

	got := 0
	for got < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return buf[:got], fmt.Errorf("%w: received %d of %d bytes", ErrTimeout, got, n)
		}
		if err := t.port.SetReadTimeout(remaining); err != nil {
			return buf[:got], transportErr("set timeout", err)
		}
		m, err := t.port.Read(buf[got:])
		got += m
		if err != nil {
			return buf[:got], transportErr("read", err)
		}
	}
	return buf, nil
}

// Close releases the bus and closes the port.
func (t *SerialTransport) Close() error {
	derr := t.dir.SetTransmit(false)
	if err := t.port.Close(); err != nil {
		return transportErr("close", err)
	}
	if derr != nil {
		return transportErr("direction", derr)
	}
	return nil
}
