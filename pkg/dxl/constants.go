// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dxl implements the half-duplex servo bus protocol in its two wire
// revisions (v1 and v2).
//
// The package provides request/status framing, checksum and CRC validation,
// a transport adapter that arbitrates the bus direction line, and a
// transaction engine with generic register read/write operations. Per-model
// register layouts are described by a ControlTable rather than code.
package dxl

import "fmt"

// Revision selects the wire format of a connection.
type Revision uint8

// Protocol revisions
const (
	V1 Revision = 1
	V2 Revision = 2
)

func (r Revision) String() string {
	switch r {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("v?(%d)", uint8(r))
	}
}

// Valid reports whether r is a known revision.
func (r Revision) Valid() bool {
	return r == V1 || r == V2
}

// Frame markers
const (
	headerByte   = 0xFF
	markerV2     = 0xFD
	reservedV2   = 0x00
	stuffByte    = 0xFD
	statusInstV2 = 0x55
)

// Header and trailer sizes
const (
	headerSizeV1 = 4 // FF FF id len
	headerSizeV2 = 7 // FF FF FD 00 id lenL lenH
	checkSizeV1  = 1
	checkSizeV2  = 2
)

// Packet size limits
const (
	MaxPacketSizeV1 = 255
	MaxPacketSizeV2 = 1024
)

// Special IDs
const (
	BroadcastID = 0xFE
	MaxID       = 0xFC
)

// Instruction is the operation code carried by a request frame.
type Instruction uint8

// Instruction codes
const (
	InstPing               Instruction = 0x01
	InstRead               Instruction = 0x02
	InstWrite              Instruction = 0x03
	InstRegWrite           Instruction = 0x04
	InstAction             Instruction = 0x05
	InstFactoryReset       Instruction = 0x06
	InstReboot             Instruction = 0x08
	InstClear              Instruction = 0x10
	InstControlTableBackup Instruction = 0x20
	InstStatus             Instruction = 0x55
	InstSyncRead           Instruction = 0x82
	InstSyncWrite          Instruction = 0x83
	InstFastSyncRead       Instruction = 0x8A
	InstBulkRead           Instruction = 0x92
	InstBulkWrite          Instruction = 0x93
	InstFastBulkRead       Instruction = 0x9A
)

// String returns the instruction name.
func (i Instruction) String() string {
	switch i {
	case InstPing:
		return "PING"
	case InstRead:
		return "READ"
	case InstWrite:
		return "WRITE"
	case InstRegWrite:
		return "REG_WRITE"
	case InstAction:
		return "ACTION"
	case InstFactoryReset:
		return "FACTORY_RESET"
	case InstReboot:
		return "REBOOT"
	case InstClear:
		return "CLEAR"
	case InstControlTableBackup:
		return "CONTROL_TABLE_BACKUP"
	case InstStatus:
		return "STATUS"
	case InstSyncRead:
		return "SYNC_READ"
	case InstSyncWrite:
		return "SYNC_WRITE"
	case InstFastSyncRead:
		return "FAST_SYNC_READ"
	case InstBulkRead:
		return "BULK_READ"
	case InstBulkWrite:
		return "BULK_WRITE"
	case InstFastBulkRead:
		return "FAST_BULK_READ"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(i))
	}
}

// isReadLike reports whether the instruction is answered at status return
// level 1 (read-only replies).
func (i Instruction) isReadLike() bool {
	switch i {
	case InstRead, InstSyncRead, InstFastSyncRead, InstBulkRead, InstFastBulkRead:
		return true
	}
	return false
}

// StatusReturnLevel mirrors the device register that decides which
// instructions get a status reply.
type StatusReturnLevel uint8

// Status return levels
const (
	ReturnPingOnly StatusReturnLevel = 0
	ReturnRead     StatusReturnLevel = 1
	ReturnAll      StatusReturnLevel = 2
)

// Factory reset modes (v2 parameter byte)
const (
	ResetAll          = 0xFF
	ResetExceptID     = 0x01
	ResetExceptIDBaud = 0x02
)
