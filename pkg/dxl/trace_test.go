// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"bytes"
	"errors"
	"testing"
)

// recordSession runs fn against a connection whose traffic is captured and
// returns the decoded capture.
func recordSession(t *testing.T, rev Revision, rx []byte, fn func(*Conn)) []TraceRecord {
	t.Helper()

	var capture bytes.Buffer
	inner := &scriptedTransport{}
	inner.feed(rx)
	tracer := NewTraceTransport(inner, &capture)

	fn(newTestConn(t, tracer, DefaultConfig(rev)))

	if err := tracer.Err(); err != nil {
		t.Fatalf("trace error: %v", err)
	}
	records, err := ReadTrace(&capture)
	if err != nil {
		t.Fatalf("ReadTrace error: %v", err)
	}
	return records
}

func TestTrace_RecordAndReplay(t *testing.T) {
	records := recordSession(t, V2, mustHex("FF FF FD 00 01 08 00 55 00 A6 00 00 00 8C C0"), func(c *Conn) {
		if _, err := c.ReadUint32(1, 132); err != nil {
			t.Fatalf("ReadUint32 error: %v", err)
		}
	})

	if len(records) != 3 {
		t.Fatalf("records = %d, want tx + 2 rx", len(records))
	}
	if records[0].Dir != TraceTx || records[1].Dir != TraceRx || records[2].Dir != TraceRx {
		t.Errorf("directions = %s %s %s", records[0].Dir, records[1].Dir, records[2].Dir)
	}
	if records[0].Time == 0 {
		t.Error("record time not set")
	}

	replay := NewReplayTransport(records)
	conn := newTestConn(t, replay, DefaultConfig(V2))

	v, err := conn.ReadUint32(1, 132)
	if err != nil {
		t.Fatalf("replayed ReadUint32 error: %v", err)
	}
	if v != 166 {
		t.Errorf("replayed value = %d, want 166", v)
	}
	if replay.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", replay.Remaining())
	}

	// The capture is exhausted now
	if _, err := conn.ReadUint32(1, 132); !errors.Is(err, ErrReplayMismatch) {
		t.Errorf("write past end error = %v, want ErrReplayMismatch", err)
	}
}

func TestTrace_ReplaysTimeout(t *testing.T) {
	records := recordSession(t, V1, nil, func(c *Conn) {
		if _, err := c.Ping(1); !errors.Is(err, ErrTimeout) {
			t.Fatalf("Ping error = %v, want ErrTimeout", err)
		}
	})

	if records[len(records)-1].Err == "" {
		t.Fatal("timeout not recorded")
	}

	conn := newTestConn(t, NewReplayTransport(records), DefaultConfig(V1))
	if _, err := conn.Ping(1); !errors.Is(err, ErrTimeout) {
		t.Errorf("replayed Ping error = %v, want ErrTimeout", err)
	}
}

func TestReplay_Diverges(t *testing.T) {
	records := recordSession(t, V1, mustHex("FF FF 01 02 00 FC"), func(c *Conn) {
		if _, err := c.Ping(1); err != nil {
			t.Fatalf("Ping error: %v", err)
		}
	})

	conn := newTestConn(t, NewReplayTransport(records), DefaultConfig(V1))
	if _, err := conn.Ping(2); !errors.Is(err, ErrReplayMismatch) {
		t.Errorf("Ping(2) error = %v, want ErrReplayMismatch", err)
	}
}

func TestReplay_Exhausted(t *testing.T) {
	replay := NewReplayTransport(nil)
	if _, err := replay.ReadExact(4); !errors.Is(err, ErrTimeout) {
		t.Errorf("ReadExact error = %v, want ErrTimeout", err)
	}
}

func TestReadTrace_Corrupt(t *testing.T) {
	if _, err := ReadTrace(bytes.NewReader([]byte{0xFF, 0x00, 0x13})); err == nil {
		t.Error("expected an error decoding a corrupt capture")
	}
}

func TestReadTrace_Empty(t *testing.T) {
	records, err := ReadTrace(bytes.NewReader(nil))
	if err != nil || len(records) != 0 {
		t.Errorf("ReadTrace(empty) = %v, %v", records, err)
	}
}
