// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import "github.com/sigurn/crc16"

// CRC-16 with polynomial 0x8005, zero init, no reflection (CRC-16/BUYPASS)
var crcTable = crc16.MakeTable(crc16.CRC16_BUYPASS)

// Checksum computes the v1 checksum: the inverted low byte of the sum of data.
// data must span id through the last parameter.
func Checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return ^sum
}

// CRC16 computes the v2 frame CRC over data.
// data must span the whole frame from the first header byte, stuffing applied.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Compute returns the integrity value of a frame that does not yet carry one.
// frame starts at the first header byte.
func Compute(rev Revision, frame []byte) uint16 {
	if rev == V1 {
		if len(frame) < 2 {
			return uint16(Checksum(nil))
		}
		return uint16(Checksum(frame[2:]))
	}
	return CRC16(frame)
}

// checkSize returns the number of trailing integrity bytes.
func checkSize(rev Revision) int {
	if rev == V1 {
		return checkSizeV1
	}
	return checkSizeV2
}

// trailingCheck extracts the integrity value stored at the end of frame.
func trailingCheck(rev Revision, frame []byte) uint16 {
	l := len(frame)
	if rev == V1 {
		return uint16(frame[l-1])
	}
	return uint16(frame[l-2]) | uint16(frame[l-1])<<8
}

// Verify reports whether the integrity value stored at the end of a complete
// frame matches the one computed over the rest of it.
func Verify(rev Revision, frame []byte) bool {
	n := checkSize(rev)
	if len(frame) < n+2 {
		return false
	}
	return Compute(rev, frame[:len(frame)-n]) == trailingCheck(rev, frame)
}

// appendCheck appends the integrity value of frame, little-endian for v2.
func appendCheck(rev Revision, frame []byte) []byte {
	c := Compute(rev, frame)
	if rev == V1 {
		return append(frame, byte(c))
	}
	return append(frame, byte(c), byte(c>>8))
}
