// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import "fmt"

// AnyLength may be passed as the expected parameter count to accept a status
// frame of any width.
const AnyLength = -1

// DeclaredLength validates the frame header and returns the number of bytes
// that follow it on the wire, as declared by the length field.
// header must hold at least HeaderSize(rev) bytes.
func DeclaredLength(rev Revision, header []byte) (int, error) {
	switch rev {
	case V1:
		if len(header) < headerSizeV1 {
			return 0, fmt.Errorf("%w: header has %d bytes (need %d)", ErrFrameTooShort, len(header), headerSizeV1)
		}
		if header[0] != headerByte || header[1] != headerByte {
			return 0, fmt.Errorf("%w: % X", ErrBadMarker, header[:2])
		}
		length := int(header[3])
		if length < 1+checkSizeV1 {
			return 0, fmt.Errorf("%w: declared length %d", ErrLengthMismatch, length)
		}
		return length, nil

	case V2:
		if len(header) < headerSizeV2 {
			return 0, fmt.Errorf("%w: header has %d bytes (need %d)", ErrFrameTooShort, len(header), headerSizeV2)
		}
		if header[0] != headerByte || header[1] != headerByte || header[2] != markerV2 || header[3] != reservedV2 {
			return 0, fmt.Errorf("%w: % X", ErrBadMarker, header[:4])
		}
		length := int(header[5]) | int(header[6])<<8
		if length < 1+checkSizeV2 || headerSizeV2+length > MaxPacketSizeV2 {
			return 0, fmt.Errorf("%w: declared length %d", ErrLengthMismatch, length)
		}
		return length, nil

	default:
		return 0, fmt.Errorf("%w: unknown revision %d", ErrConfig, uint8(rev))
	}
}

// decodeFrame checks marker, length and integrity of one complete frame and
// returns its id and unstuffed body (instruction or error byte onward,
// integrity bytes excluded).
func decodeFrame(rev Revision, frame []byte) (uint8, []byte, error) {
	hdr := HeaderSize(rev)
	if len(frame) < hdr {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}

	length, err := DeclaredLength(rev, frame)
	if err != nil {
		return 0, nil, err
	}

	total := hdr + length
	if len(frame) < total {
		return 0, nil, fmt.Errorf("%w: have %d bytes, header declares %d", ErrFrameTooShort, len(frame), total)
	}
	if len(frame) > total {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes after frame", ErrLengthMismatch, len(frame)-total)
	}

	if !Verify(rev, frame) {
		return 0, nil, fmt.Errorf("%w: computed 0x%04X, received 0x%04X", ErrIntegrity,
			Compute(rev, frame[:total-checkSize(rev)]), trailingCheck(rev, frame))
	}

	body := frame[hdr : total-checkSize(rev)]
	if rev == V2 {
		body = Unstuff(body)
	} else {
		body = append([]byte(nil), body...)
	}

	id := frame[2]
	if rev == V2 {
		id = frame[4]
	}
	return id, body, nil
}

// DecodeStatus decodes one complete status frame carrying exactly n
// parameter bytes (or any count when n is AnyLength).
func DecodeStatus(rev Revision, frame []byte, n int) (*Status, error) {
	id, body, err := decodeFrame(rev, frame)
	if err != nil {
		return nil, err
	}

	if rev == V2 {
		if body[0] != statusInstV2 {
			return nil, fmt.Errorf("%w: instruction 0x%02X", ErrNotStatus, body[0])
		}
		if len(body) < 2 {
			return nil, fmt.Errorf("%w: status body has %d bytes", ErrLengthMismatch, len(body))
		}
		body = body[1:]
	}

	params := body[1:]
	if n != AnyLength && len(params) != n {
		return nil, fmt.Errorf("%w: expected %d parameter bytes, got %d", ErrLengthMismatch, n, len(params))
	}

	return &Status{
		Revision: rev,
		ID:       id,
		Alarm:    Alarm{Revision: rev, Code: body[0]},
		Params:   params,
		Check:    trailingCheck(rev, frame),
	}, nil
}

// DecodeRequest decodes one complete request frame. Useful for bus monitors
// and simulated devices.
func DecodeRequest(rev Revision, frame []byte) (*Request, error) {
	id, body, err := decodeFrame(rev, frame)
	if err != nil {
		return nil, err
	}
	return &Request{
		Revision:    rev,
		ID:          id,
		Instruction: Instruction(body[0]),
		Params:      body[1:],
	}, nil
}
