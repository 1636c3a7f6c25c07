// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"bytes"
	"errors"
	"testing"
)

// lastRequest decodes the most recent frame written to tr
func lastRequest(t *testing.T, rev Revision, tr *scriptedTransport) *Request {
	t.Helper()
	if len(tr.writes) == 0 {
		t.Fatal("nothing was written")
	}
	r, err := DecodeRequest(rev, tr.writes[len(tr.writes)-1])
	if err != nil {
		t.Fatalf("DecodeRequest error: %v", err)
	}
	return r
}

// ============================================================
// Ping Tests
// ============================================================

func TestPing_V2ReportsModel(t *testing.T) {
	tr := &scriptedTransport{}
	tr.feed(mustHex("FF FF FD 00 01 07 00 55 00 06 04 26 65 5D"))
	conn := newTestConn(t, tr, DefaultConfig(V2))

	info, err := conn.Ping(1)
	if err != nil {
		t.Fatalf("Ping error: %v", err)
	}
	if !bytes.Equal(tr.writes[0], mustHex("FF FF FD 00 01 03 00 01 19 4E")) {
		t.Errorf("request = % X", tr.writes[0])
	}
	if info.ModelNumber != 1030 || info.Firmware != 38 {
		t.Errorf("info = %+v, want model 1030 firmware 38", info)
	}
}

func TestPing_V1(t *testing.T) {
	tr := &scriptedTransport{}
	tr.feed(mustHex("FF FF 01 02 00 FC"))
	conn := newTestConn(t, tr, DefaultConfig(V1))

	info, err := conn.Ping(1)
	if err != nil {
		t.Fatalf("Ping error: %v", err)
	}
	if !bytes.Equal(tr.writes[0], mustHex("FF FF 01 02 01 FB")) {
		t.Errorf("request = % X", tr.writes[0])
	}
	if info.ID != 1 || info.Alarm.Active() || info.ModelNumber != 0 {
		t.Errorf("info = %+v", info)
	}
}

func TestPing_Broadcast(t *testing.T) {
	tr := &scriptedTransport{}
	conn := newTestConn(t, tr, DefaultConfig(V2))

	if _, err := conn.Ping(BroadcastID); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Ping(broadcast) error = %v, want ErrUnsupported", err)
	}
	if len(tr.writes) != 0 {
		t.Error("broadcast ping should not be sent")
	}
}

// ============================================================
// Read / Write Tests
// ============================================================

func TestWrite_V2Vector(t *testing.T) {
	tr := &scriptedTransport{}
	tr.feed(mustHex("FF FF FD 00 01 04 00 55 00 A1 0C"))
	conn := newTestConn(t, tr, DefaultConfig(V2))

	status, err := conn.WriteUint32(1, 116, 512)
	if err != nil {
		t.Fatalf("WriteUint32 error: %v", err)
	}
	if !bytes.Equal(tr.writes[0], mustHex("FF FF FD 00 01 09 00 03 74 00 00 02 00 00 CA 89")) {
		t.Errorf("request = % X", tr.writes[0])
	}
	if status == nil || status.Alarm.Active() {
		t.Errorf("status = %+v", status)
	}
}

func TestWrite_V1Params(t *testing.T) {
	tr := &scriptedTransport{}
	tr.feed(mustStatus(t, V1, 4, 0))
	conn := newTestConn(t, tr, DefaultConfig(V1))

	if _, err := conn.WriteUint16(4, 30, 0x0200); err != nil {
		t.Fatalf("WriteUint16 error: %v", err)
	}

	r := lastRequest(t, V1, tr)
	if r.ID != 4 || r.Instruction != InstWrite || !bytes.Equal(r.Params, []byte{30, 0x00, 0x02}) {
		t.Errorf("request = %+v", r)
	}
}

func TestRead_V1AddressRange(t *testing.T) {
	tr := &scriptedTransport{}
	conn := newTestConn(t, tr, DefaultConfig(V1))

	if _, err := conn.Read(1, 300, 1); !errors.Is(err, ErrAddressRange) {
		t.Errorf("Read(300) error = %v, want ErrAddressRange", err)
	}
	if _, err := conn.Write(1, 256, []byte{1}); !errors.Is(err, ErrAddressRange) {
		t.Errorf("Write(256) error = %v, want ErrAddressRange", err)
	}
	if len(tr.writes) != 0 {
		t.Error("out of range requests should not be sent")
	}
}

func TestRead_NegativeLength(t *testing.T) {
	for _, rev := range []Revision{V1, V2} {
		tr := &scriptedTransport{}
		tr.feed(mustStatus(t, rev, 1, 0, 0x01, 0x02, 0x03, 0x04, 0x05))
		conn := newTestConn(t, tr, DefaultConfig(rev))

		if _, err := conn.Read(1, 10, -1); !errors.Is(err, ErrAddressRange) {
			t.Errorf("%s Read(-1) error = %v, want ErrAddressRange", rev, err)
		}
		if _, err := conn.ReadStatus(1, 10, -1); !errors.Is(err, ErrAddressRange) {
			t.Errorf("%s ReadStatus(-1) error = %v, want ErrAddressRange", rev, err)
		}
		if err := conn.SyncWrite(10, -1, map[uint8][]byte{1: nil}); !errors.Is(err, ErrAddressRange) {
			t.Errorf("%s SyncWrite(width -1) error = %v, want ErrAddressRange", rev, err)
		}
		if len(tr.writes) != 0 {
			t.Errorf("%s: negative lengths should not be sent, wrote % X", rev, tr.writes)
		}
	}
}

func TestRead_NeedsReply(t *testing.T) {
	tr := &scriptedTransport{}
	cfg := Config{Revision: V2, Multiplicity: 0, StatusReturnLevel: ReturnAll}
	conn := newTestConn(t, tr, cfg)

	if _, err := conn.Read(1, 132, 4); !errors.Is(err, ErrConfig) {
		t.Errorf("Read without reply error = %v, want ErrConfig", err)
	}
}

func TestRead_Broadcast(t *testing.T) {
	conn := newTestConn(t, &scriptedTransport{}, DefaultConfig(V2))
	if _, err := conn.Read(BroadcastID, 0, 2); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Read(broadcast) error = %v, want ErrUnsupported", err)
	}
}

func TestReadStatus_Broadcast(t *testing.T) {
	tr := &scriptedTransport{}
	conn := newTestConn(t, tr, DefaultConfig(V2))
	if _, err := conn.ReadStatus(BroadcastID, 0, 2); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ReadStatus(broadcast) error = %v, want ErrUnsupported", err)
	}
	if len(tr.writes) != 0 {
		t.Error("broadcast read should not be sent")
	}
}

func TestReadStatus_KeepsAlarm(t *testing.T) {
	tr := &scriptedTransport{}
	tr.feed(mustStatus(t, V2, 1, AlarmHardwareAlert, 0x2A))
	conn := newTestConn(t, tr, DefaultConfig(V2))

	status, err := conn.ReadStatus(1, 146, 1)
	if err != nil {
		t.Fatalf("ReadStatus error: %v", err)
	}
	if !status.Alarm.HardwareAlert() || status.Params[0] != 0x2A {
		t.Errorf("status = %+v", status)
	}
}

// ============================================================
// Instruction Tests
// ============================================================

func TestRegWriteAction(t *testing.T) {
	tr := &scriptedTransport{}
	tr.feed(mustStatus(t, V2, 1, 0))
	conn := newTestConn(t, tr, DefaultConfig(V2))

	if _, err := conn.RegWrite(1, 116, []byte{0x00, 0x08, 0x00, 0x00}); err != nil {
		t.Fatalf("RegWrite error: %v", err)
	}
	r := lastRequest(t, V2, tr)
	if r.Instruction != InstRegWrite || !bytes.Equal(r.Params, []byte{0x74, 0x00, 0x00, 0x08, 0x00, 0x00}) {
		t.Errorf("RegWrite request = %+v", r)
	}

	if _, err := conn.Action(BroadcastID); err != nil {
		t.Fatalf("Action error: %v", err)
	}
	r = lastRequest(t, V2, tr)
	if r.Instruction != InstAction || !r.IsBroadcast() || len(r.Params) != 0 {
		t.Errorf("Action request = %+v", r)
	}
}

func TestReboot_V1Unsupported(t *testing.T) {
	tr := &scriptedTransport{}
	conn := newTestConn(t, tr, DefaultConfig(V1))

	if _, err := conn.Reboot(1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Reboot error = %v, want ErrUnsupported", err)
	}
	if _, err := conn.Clear(1, []byte{0x01}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Clear error = %v, want ErrUnsupported", err)
	}
	if len(tr.writes) != 0 {
		t.Error("unsupported instructions should not be sent")
	}
}

func TestReboot_V2(t *testing.T) {
	tr := &scriptedTransport{}
	tr.feed(mustStatus(t, V2, 2, 0))
	conn := newTestConn(t, tr, DefaultConfig(V2))

	if _, err := conn.Reboot(2); err != nil {
		t.Fatalf("Reboot error: %v", err)
	}
	if r := lastRequest(t, V2, tr); r.Instruction != InstReboot || r.ID != 2 {
		t.Errorf("request = %+v", r)
	}
}

func TestFactoryReset_Params(t *testing.T) {
	tests := []struct {
		rev  Revision
		want []byte
	}{
		{V1, []byte{}},
		{V2, []byte{ResetExceptID}},
	}

	for _, tt := range tests {
		t.Run(tt.rev.String(), func(t *testing.T) {
			tr := &scriptedTransport{}
			tr.feed(mustStatus(t, tt.rev, 1, 0))
			conn := newTestConn(t, tr, DefaultConfig(tt.rev))

			if _, err := conn.FactoryReset(1, ResetExceptID); err != nil {
				t.Fatalf("FactoryReset error: %v", err)
			}
			r := lastRequest(t, tt.rev, tr)
			if r.Instruction != InstFactoryReset || !bytes.Equal(r.Params, tt.want) {
				t.Errorf("request = %+v", r)
			}
		})
	}
}

func TestSyncWrite(t *testing.T) {
	tr := &scriptedTransport{}
	conn := newTestConn(t, tr, DefaultConfig(V2))

	err := conn.SyncWrite(116, 2, map[uint8][]byte{
		3: {0x30, 0x03},
		1: {0x10, 0x01},
	})
	if err != nil {
		t.Fatalf("SyncWrite error: %v", err)
	}

	r := lastRequest(t, V2, tr)
	want := []byte{0x74, 0x00, 0x02, 0x00, 1, 0x10, 0x01, 3, 0x30, 0x03}
	if !r.IsBroadcast() || r.Instruction != InstSyncWrite || !bytes.Equal(r.Params, want) {
		t.Errorf("request = %+v, want params % X", r, want)
	}
	if len(tr.reads) != 0 {
		t.Errorf("sync write should not wait for replies, reads = %v", tr.reads)
	}
}

func TestSyncWrite_WidthMismatch(t *testing.T) {
	tr := &scriptedTransport{}
	conn := newTestConn(t, tr, DefaultConfig(V1))

	err := conn.SyncWrite(30, 2, map[uint8][]byte{1: {0x01}})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("SyncWrite error = %v, want ErrLengthMismatch", err)
	}
	if len(tr.writes) != 0 {
		t.Error("malformed sync write should not be sent")
	}
}
