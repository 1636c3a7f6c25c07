// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// mustHex parses space-separated hex bytes like "FF FF 01"
func mustHex(s string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(err)
	}
	return b
}

// ============================================================
// Checksum Tests (v1)
// ============================================================

func TestChecksum_KnownFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"ping id 1", "FF FF 01 02 01 FB"},
		{"ping status id 1", "FF FF 01 02 00 FC"},
		{"read temperature id 1", "FF FF 01 04 02 2B 01 CC"},
		{"temperature status", "FF FF 01 03 00 20 DB"},
		{"read position id 1", "FF FF 01 04 02 24 02 D2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := mustHex(tt.frame)
			if !Verify(V1, frame) {
				t.Errorf("Verify(%s) = false", tt.frame)
			}
			got := Checksum(frame[2 : len(frame)-1])
			if got != frame[len(frame)-1] {
				t.Errorf("Checksum = 0x%02X, want 0x%02X", got, frame[len(frame)-1])
			}
		})
	}
}

func TestChecksum_Empty(t *testing.T) {
	if got := Checksum(nil); got != 0xFF {
		t.Errorf("Checksum(nil) = 0x%02X, want 0xFF", got)
	}
}

func TestChecksum_Wraps(t *testing.T) {
	// 0xFF + 0x02 = 0x101 -> low byte 0x01 -> inverted 0xFE
	if got := Checksum([]byte{0xFF, 0x02}); got != 0xFE {
		t.Errorf("Checksum = 0x%02X, want 0xFE", got)
	}
}

// ============================================================
// CRC Tests (v2)
// ============================================================

func TestCRC16_CheckValue(t *testing.T) {
	// Catalogue check value of CRC-16/BUYPASS
	if got := CRC16([]byte("123456789")); got != 0xFEE8 {
		t.Errorf("CRC16(123456789) = 0x%04X, want 0xFEE8", got)
	}
}

func TestCRC16_Empty(t *testing.T) {
	if got := CRC16(nil); got != 0x0000 {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", got)
	}
}

func TestCRC16_KnownFrames(t *testing.T) {
	frames := []string{
		"FF FF FD 00 01 03 00 01 19 4E",                         // ping id 1
		"FF FF FD 00 01 07 00 55 00 06 04 26 65 5D",             // ping status
		"FF FF FD 00 01 07 00 02 84 00 04 00 1D 15",             // read 132, 4 bytes
		"FF FF FD 00 01 08 00 55 00 A6 00 00 00 8C C0",          // read status
		"FF FF FD 00 01 09 00 03 74 00 00 02 00 00 CA 89",       // write 116 = 512
	}
	for _, s := range frames {
		if !Verify(V2, mustHex(s)) {
			t.Errorf("Verify(%s) = false", s)
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	data := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x05, 0x03, 0x00, 0x01}
	for _, rev := range []Revision{V1, V2} {
		a := Compute(rev, data)
		b := Compute(rev, data)
		if a != b {
			t.Errorf("%s: Compute should be deterministic: 0x%04X != 0x%04X", rev, a, b)
		}
	}
}

func TestCompute_SingleByteSensitivity(t *testing.T) {
	base := mustHex("FF FF FD 00 01 07 00 02 84 00 04 00")

	for _, rev := range []Revision{V1, V2} {
		want := Compute(rev, base)
		// v1 only covers id onward
		start := 0
		if rev == V1 {
			start = 2
		}
		for i := start; i < len(base); i++ {
			for bit := 0; bit < 8; bit++ {
				flipped := append([]byte(nil), base...)
				flipped[i] ^= 1 << bit
				if Compute(rev, flipped) == want {
					t.Errorf("%s: flipping bit %d of byte %d left the check unchanged", rev, bit, i)
				}
			}
		}
	}
}

func TestVerify_TooShort(t *testing.T) {
	if Verify(V2, []byte{0xFF, 0xFF}) {
		t.Error("Verify should reject a frame shorter than its check")
	}
	if Verify(V1, []byte{0xFF}) {
		t.Error("Verify should reject a frame shorter than its check")
	}
}

// ============================================================
// Byte Stuffing Tests
// ============================================================

func TestStuff_HeaderSequence(t *testing.T) {
	got := Stuff([]byte{0xFF, 0xFF, 0xFD})
	want := []byte{0xFF, 0xFF, 0xFD, 0xFD}
	if !bytes.Equal(got, want) {
		t.Errorf("Stuff = % X, want % X", got, want)
	}

	back := Unstuff(got)
	if !bytes.Equal(back, []byte{0xFF, 0xFF, 0xFD}) {
		t.Errorf("Unstuff = % X, want FF FF FD", back)
	}
}

func TestStuff_NoChange(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{0xFF, 0xFD, 0xFF},
		{0xFF, 0xFF, 0xFE},
		{0xFD, 0xFD, 0xFD},
	}
	for _, in := range inputs {
		if got := Stuff(in); !bytes.Equal(got, in) {
			t.Errorf("Stuff(% X) = % X, want unchanged", in, got)
		}
		if needsStuffing(in) {
			t.Errorf("needsStuffing(% X) = true", in)
		}
	}
}

func TestStuff_RoundTrip(t *testing.T) {
	inputs := []string{
		"FF FF FD",
		"FF FF FD FD",
		"FF FF FF FD",
		"00 FF FF FD FF FF FD 00",
		"FF FF FD FD FD",
		"55 00 FF FF FD 01",
	}
	for _, s := range inputs {
		in := mustHex(s)
		stuffed := Stuff(in)
		if len(stuffed) <= len(in) {
			t.Errorf("Stuff(%s) did not escape: % X", s, stuffed)
		}
		if got := Unstuff(stuffed); !bytes.Equal(got, in) {
			t.Errorf("Unstuff(Stuff(%s)) = % X", s, got)
		}
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecodeStatus_V1Temperature(t *testing.T) {
	s, err := DecodeStatus(V1, mustHex("FF FF 01 03 00 20 DB"), 1)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if s.ID != 1 || s.Alarm.Active() || !bytes.Equal(s.Params, []byte{0x20}) || s.Check != 0xDB {
		t.Errorf("Unexpected status: %+v", s)
	}
}

func TestDecodeStatus_V2Ping(t *testing.T) {
	s, err := DecodeStatus(V2, mustHex("FF FF FD 00 01 07 00 55 00 06 04 26 65 5D"), 3)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if s.ID != 1 {
		t.Errorf("ID = %d, want 1", s.ID)
	}
	if !bytes.Equal(s.Params, []byte{0x06, 0x04, 0x26}) {
		t.Errorf("Params = % X", s.Params)
	}
	if s.Check != 0x5D65 {
		t.Errorf("Check = 0x%04X, want 0x5D65", s.Check)
	}
}

func TestDecodeStatus_AnyLength(t *testing.T) {
	s, err := DecodeStatus(V2, mustHex("FF FF FD 00 01 08 00 55 00 A6 00 00 00 8C C0"), AnyLength)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(s.Params) != 4 || s.Params[0] != 0xA6 {
		t.Errorf("Params = % X", s.Params)
	}
}

func TestDecodeStatus_Errors(t *testing.T) {
	tests := []struct {
		name  string
		rev   Revision
		frame string
		n     int
		want  error
	}{
		{"v1 empty", V1, "", 0, ErrFrameTooShort},
		{"v1 bad marker", V1, "FF FE 01 02 00 FC", 0, ErrBadMarker},
		{"v1 truncated", V1, "FF FF 01 03 00 20", 1, ErrFrameTooShort},
		{"v1 trailing byte", V1, "FF FF 01 02 00 FC 00", 0, ErrLengthMismatch},
		{"v1 bad checksum", V1, "FF FF 01 03 00 20 DC", 1, ErrIntegrity},
		{"v1 width mismatch", V1, "FF FF 01 03 00 20 DB", 2, ErrLengthMismatch},
		{"v1 length too small", V1, "FF FF 01 01 FD", 0, ErrLengthMismatch},
		{"v2 bad marker", V2, "FF FF FE 00 01 07 00 55 00 06 04 26 65 5D", 3, ErrBadMarker},
		{"v2 bad reserved", V2, "FF FF FD 01 01 07 00 55 00 06 04 26 65 5D", 3, ErrBadMarker},
		{"v2 truncated", V2, "FF FF FD 00 01 07 00 55 00 06 04 26 65", 3, ErrFrameTooShort},
		{"v2 header only", V2, "FF FF FD 00 01", 3, ErrFrameTooShort},
		{"v2 bad crc", V2, "FF FF FD 00 01 07 00 55 00 06 04 26 65 5E", 3, ErrIntegrity},
		{"v2 width mismatch", V2, "FF FF FD 00 01 07 00 55 00 06 04 26 65 5D", 2, ErrLengthMismatch},
		{"v2 request not status", V2, "FF FF FD 00 01 03 00 01 19 4E", 0, ErrNotStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStatus(tt.rev, mustHex(tt.frame), tt.n)
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeStatus error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeStatus_V2Alarm(t *testing.T) {
	frame, err := EncodeStatus(&Status{Revision: V2, ID: 3, Alarm: Alarm{Revision: V2, Code: AlarmHardwareAlert | ErrNumDataRange}})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	s, err := DecodeStatus(V2, frame, 0)
	if err != nil {
		t.Fatalf("Alarm must not be a decode error: %v", err)
	}
	if !s.Alarm.Active() || !s.Alarm.HardwareAlert() {
		t.Errorf("Alarm = %v, want active hardware alert", s.Alarm)
	}

	var alarmErr *AlarmError
	if !errors.As(s.Err(), &alarmErr) || alarmErr.ID != 3 {
		t.Errorf("Status.Err() = %v, want *AlarmError for id 3", s.Err())
	}
}

func TestDecodeRequest_V2Read(t *testing.T) {
	r, err := DecodeRequest(V2, mustHex("FF FF FD 00 01 07 00 02 84 00 04 00 1D 15"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if r.ID != 1 || r.Instruction != InstRead || !bytes.Equal(r.Params, []byte{0x84, 0x00, 0x04, 0x00}) {
		t.Errorf("Unexpected request: %+v", r)
	}
}

// ============================================================
// Alarm Formatting Tests
// ============================================================

func TestAlarm_String(t *testing.T) {
	tests := []struct {
		alarm Alarm
		want  string
	}{
		{Alarm{V1, 0}, "OK"},
		{Alarm{V1, AlarmOverheating | AlarmOverload}, "OVERHEATING|OVERLOAD"},
		{Alarm{V1, AlarmInstruction}, "INSTRUCTION"},
		{Alarm{V2, ErrNumCRC}, "CRC_ERROR"},
		{Alarm{V2, AlarmHardwareAlert}, "HARDWARE_ALERT"},
		{Alarm{V2, AlarmHardwareAlert | ErrNumAccess}, "HARDWARE_ALERT|ACCESS_ERROR"},
		{Alarm{V2, 0x7F}, "UNKNOWN_ERROR"},
	}
	for _, tt := range tests {
		if got := tt.alarm.String(); got != tt.want {
			t.Errorf("Alarm{%s, 0x%02X}.String() = %q, want %q", tt.alarm.Revision, tt.alarm.Code, got, tt.want)
		}
	}
}

func TestInstruction_String(t *testing.T) {
	if InstSyncWrite.String() != "SYNC_WRITE" {
		t.Errorf("InstSyncWrite.String() = %q", InstSyncWrite.String())
	}
	if !strings.HasPrefix(Instruction(0x7E).String(), "UNKNOWN") {
		t.Errorf("unknown instruction should format as UNKNOWN, got %q", Instruction(0x7E).String())
	}
}
