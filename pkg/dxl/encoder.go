// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import "fmt"

// Encode encodes the request to wire format.
func (r *Request) Encode() ([]byte, error) {
	return EncodeRequest(r.Revision, r.ID, r.Instruction, r.Params)
}

// EncodeRequest creates a complete wire-formatted request frame.
// Returns the frame bytes ready for transmission, including header, stuffing
// (v2) and the trailing checksum or CRC.
func EncodeRequest(rev Revision, id uint8, inst Instruction, params []byte) ([]byte, error) {
	body := make([]byte, 0, 1+len(params))
	body = append(body, uint8(inst))
	body = append(body, params...)
	return encodeFrame(rev, id, body)
}

// EncodeStatus creates the wire form of a status frame. Devices produce
// these; the driver uses it for simulated devices and tests.
func EncodeStatus(s *Status) ([]byte, error) {
	var body []byte
	if s.Revision == V2 {
		body = make([]byte, 0, 2+len(s.Params))
		body = append(body, statusInstV2)
	} else {
		body = make([]byte, 0, 1+len(s.Params))
	}
	body = append(body, s.Alarm.Code)
	body = append(body, s.Params...)
	return encodeFrame(s.Revision, s.ID, body)
}

// encodeFrame wraps body (instruction or error byte followed by parameters)
// with the revision's header, length field and integrity check.
func encodeFrame(rev Revision, id uint8, body []byte) ([]byte, error) {
	switch rev {
	case V1:
		length := len(body) + checkSizeV1
		if headerSizeV1+length > MaxPacketSizeV1 {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPacketTooLarge, headerSizeV1+length, MaxPacketSizeV1)
		}

		frame := make([]byte, 0, headerSizeV1+length)
		frame = append(frame, headerByte, headerByte, id, uint8(length))
		frame = append(frame, body...)
		return appendCheck(V1, frame), nil

	case V2:
		if needsStuffing(body) {
			body = Stuff(body)
		}
		length := len(body) + checkSizeV2
		if headerSizeV2+length > MaxPacketSizeV2 {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPacketTooLarge, headerSizeV2+length, MaxPacketSizeV2)
		}

		frame := make([]byte, 0, headerSizeV2+length)
		frame = append(frame, headerByte, headerByte, markerV2, reservedV2, id, uint8(length), uint8(length>>8))
		frame = append(frame, body...)
		return appendCheck(V2, frame), nil

	default:
		return nil, fmt.Errorf("%w: unknown revision %d", ErrConfig, uint8(rev))
	}
}

// HeaderSize returns the number of bytes preceding the instruction (or
// error) byte; the last of them completes the length field.
func HeaderSize(rev Revision) int {
	if rev == V1 {
		return headerSizeV1
	}
	return headerSizeV2
}

// StatusFrameSize returns the size of an unstuffed status frame carrying n
// parameter bytes.
func StatusFrameSize(rev Revision, n int) int {
	if rev == V1 {
		return headerSizeV1 + 1 + n + checkSizeV1
	}
	return headerSizeV2 + 2 + n + checkSizeV2
}
