// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Trace directions
const (
	TraceTx = "tx"
	TraceRx = "rx"
)

// ErrReplayMismatch is returned when a replayed session diverges from its trace.
var ErrReplayMismatch = errors.New("dxl: replay diverged from trace")

// TraceRecord is one transport operation in a capture. Records are stored
// as a CBOR sequence.
type TraceRecord struct {
	Time int64  `cbor:"t"` // unix nanoseconds
	Dir  string `cbor:"dir"`
	Data []byte `cbor:"data"`
	Err  string `cbor:"err,omitempty"`
}

// TraceTransport records every frame written and every read of the wrapped
// transport to w.
type TraceTransport struct {
	next Transport
	enc  *cbor.Encoder
	err  error
}

// NewTraceTransport wraps next and appends records to w.
func NewTraceTransport(next Transport, w io.Writer) *TraceTransport {
	return &TraceTransport{
		next: next,
		enc:  cbor.NewEncoder(w),
	}
}

func (t *TraceTransport) record(dir string, data []byte, err error) {
	if t.err != nil {
		return
	}
	rec := TraceRecord{
		Time: time.Now().UnixNano(),
		Dir:  dir,
		Data: append([]byte(nil), data...),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	if encErr := t.enc.Encode(rec); encErr != nil {
		t.err = fmt.Errorf("trace: %w", encErr)
	}
}

// WriteFrame implements Transport
func (t *TraceTransport) WriteFrame(frame []byte) error {
	err := t.next.WriteFrame(frame)
	t.record(TraceTx, frame, err)
	return err
}

// ReadExact implements Transport
func (t *TraceTransport) ReadExact(n int) ([]byte, error) {
	data, err := t.next.ReadExact(n)
	t.record(TraceRx, data, err)
	return data, err
}

// Err returns the first error hit while writing the trace.
func (t *TraceTransport) Err() error {
	return t.err
}

// ReadTrace loads all records from a capture.
func ReadTrace(r io.Reader) ([]TraceRecord, error) {
	dec := cbor.NewDecoder(r)
	records := []TraceRecord{}
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("trace: record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}

// ReplayTransport plays a capture back: written frames must match the
// recorded tx frames and reads return the recorded rx data in order.
// Once the capture is exhausted every read times out.
type ReplayTransport struct {
	records []TraceRecord
	pos     int
}

// NewReplayTransport creates a transport replaying records.
func NewReplayTransport(records []TraceRecord) *ReplayTransport {
	return &ReplayTransport{records: records}
}

func (t *ReplayTransport) next(dir string) (*TraceRecord, bool) {
	if t.pos >= len(t.records) {
		return nil, false
	}
	rec := &t.records[t.pos]
	if rec.Dir != dir {
		return rec, false
	}
	t.pos++
	return rec, true
}

// WriteFrame implements Transport
func (t *ReplayTransport) WriteFrame(frame []byte) error {
	rec, ok := t.next(TraceTx)
	if !ok {
		if rec == nil {
			return fmt.Errorf("%w: unexpected write after end of trace", ErrReplayMismatch)
		}
		return fmt.Errorf("%w: write where trace has %s", ErrReplayMismatch, rec.Dir)
	}
	if !bytes.Equal(rec.Data, frame) {
		return fmt.Errorf("%w: wrote % X, trace has % X", ErrReplayMismatch, frame, rec.Data)
	}
	return replayErr(rec.Err)
}

// ReadExact implements Transport
func (t *ReplayTransport) ReadExact(n int) ([]byte, error) {
	rec, ok := t.next(TraceRx)
	if !ok {
		if rec == nil {
			return nil, fmt.Errorf("%w: trace exhausted", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: read where trace has %s", ErrReplayMismatch, rec.Dir)
	}
	if rec.Err == "" && len(rec.Data) != n {
		return nil, fmt.Errorf("%w: read %d bytes, trace has %d", ErrReplayMismatch, n, len(rec.Data))
	}
	return rec.Data, replayErr(rec.Err)
}

// Remaining returns the number of records not yet replayed
func (t *ReplayTransport) Remaining() int {
	return len(t.records) - t.pos
}

// replayErr rebuilds a recorded error so errors.Is still classifies it.
func replayErr(msg string) error {
	switch {
	case msg == "":
		return nil
	case strings.HasPrefix(msg, ErrTimeout.Error()):
		return fmt.Errorf("%w (replayed)", ErrTimeout)
	default:
		return &TransportError{Op: "replay", Err: errors.New(msg)}
	}
}
