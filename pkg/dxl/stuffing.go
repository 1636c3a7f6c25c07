// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

// Stuff escapes every FF FF FD sequence in a v2 frame body as FF FF FD FD,
// so the receiver cannot mistake payload for a new header.
func Stuff(body []byte) []byte {
	result := make([]byte, 0, len(body)+len(body)/3+1)

	for i, b := range body {
		result = append(result, b)
		if b == stuffByte && i >= 2 && body[i-1] == headerByte && body[i-2] == headerByte {
			result = append(result, stuffByte)
		}
	}

	return result
}

// Unstuff removes the escape byte inserted by Stuff.
// This is the inverse of Stuff.
func Unstuff(wire []byte) []byte {
	result := make([]byte, 0, len(wire))

	for i := 0; i < len(wire); i++ {
		result = append(result, wire[i])
		if wire[i] == stuffByte && i >= 2 && wire[i-1] == headerByte && wire[i-2] == headerByte &&
			i+1 < len(wire) && wire[i+1] == stuffByte {
			i++
		}
	}

	return result
}

// needsStuffing reports whether Stuff would change body.
func needsStuffing(body []byte) bool {
	for i := 2; i < len(body); i++ {
		if body[i] == stuffByte && body[i-1] == headerByte && body[i-2] == headerByte {
			return true
		}
	}
	return false
}
