// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import "strings"

// Request is an instruction frame addressed to one device (or broadcast).
type Request struct {
	Revision    Revision
	ID          uint8
	Instruction Instruction
	Params      []byte
}

// IsBroadcast returns true if the request addresses every device
func (r *Request) IsBroadcast() bool {
	return r.ID == BroadcastID
}

// Status is a decoded status (reply) frame.
type Status struct {
	Revision Revision
	ID       uint8
	Alarm    Alarm
	Params   []byte
	Check    uint16 // checksum (v1, low byte) or CRC (v2) as received
}

// Err returns an *AlarmError when the device flagged a hardware alarm, nil otherwise.
func (s *Status) Err() error {
	if s == nil || !s.Alarm.Active() {
		return nil
	}
	return &AlarmError{ID: s.ID, Alarm: s.Alarm}
}

// Alarm is the error byte of a status frame. Its bit meaning depends on
// the revision.
type Alarm struct {
	Revision Revision
	Code     uint8
}

// v1 alarm bits
const (
	AlarmInputVoltage = 1 << 0
	AlarmAngleLimit   = 1 << 1
	AlarmOverheating  = 1 << 2
	AlarmRange        = 1 << 3
	AlarmChecksum     = 1 << 4
	AlarmOverload     = 1 << 5
	AlarmInstruction  = 1 << 6
)

// v2 alarm layout: bit 7 is the hardware alert flag, the rest an error number.
const (
	AlarmHardwareAlert = 0x80

	ErrNumResultFail  = 0x01
	ErrNumInstruction = 0x02
	ErrNumCRC         = 0x03
	ErrNumDataRange   = 0x04
	ErrNumDataLength  = 0x05
	ErrNumDataLimit   = 0x06
	ErrNumAccess      = 0x07
)

// Active reports whether any alarm condition is set.
func (a Alarm) Active() bool {
	return a.Code != 0
}

// HardwareAlert reports whether the device flagged a hardware fault that
// needs inspection of its hardware error register.
func (a Alarm) HardwareAlert() bool {
	switch a.Revision {
	case V2:
		return a.Code&AlarmHardwareAlert != 0
	default:
		return a.Code&(AlarmInputVoltage|AlarmOverheating|AlarmOverload) != 0
	}
}

var v1AlarmNames = []string{
	"INPUT_VOLTAGE",
	"ANGLE_LIMIT",
	"OVERHEATING",
	"RANGE",
	"CHECKSUM",
	"OVERLOAD",
	"INSTRUCTION",
}

var v2ErrorNames = map[uint8]string{
	ErrNumResultFail:  "RESULT_FAIL",
	ErrNumInstruction: "INSTRUCTION_ERROR",
	ErrNumCRC:         "CRC_ERROR",
	ErrNumDataRange:   "DATA_RANGE_ERROR",
	ErrNumDataLength:  "DATA_LENGTH_ERROR",
	ErrNumDataLimit:   "DATA_LIMIT_ERROR",
	ErrNumAccess:      "ACCESS_ERROR",
}

// String returns the alarm flags in human-readable form
func (a Alarm) String() string {
	if a.Code == 0 {
		return "OK"
	}

	parts := []string{}
	switch a.Revision {
	case V2:
		if a.Code&AlarmHardwareAlert != 0 {
			parts = append(parts, "HARDWARE_ALERT")
		}
		if num := a.Code &^ AlarmHardwareAlert; num != 0 {
			if name, ok := v2ErrorNames[num]; ok {
				parts = append(parts, name)
			} else {
				parts = append(parts, "UNKNOWN_ERROR")
			}
		}
	default:
		for bit, name := range v1AlarmNames {
			if a.Code&(1<<bit) != 0 {
				parts = append(parts, name)
			}
		}
		if a.Code&0x80 != 0 {
			parts = append(parts, "UNKNOWN_BIT7")
		}
	}
	return strings.Join(parts, "|")
}

// PingInfo is the reply to a ping. Model and firmware are only reported by
// v2 devices.
type PingInfo struct {
	ID          uint8
	ModelNumber uint16
	Firmware    uint8
	Alarm       Alarm
}
