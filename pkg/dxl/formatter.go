// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"fmt"
	"strings"
)

// FormatHex formats bytes as space-separated upper-case hex
func FormatHex(b []byte) string {
	if len(b) == 0 {
		return "-"
	}
	return fmt.Sprintf("% X", b)
}

// FormatFrame formats a sniffed frame into a human-readable line
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")

	var kind string
	switch {
	case f.IsStatus() && len(f.Params) > 0:
		alarm := Alarm{Revision: f.Revision, Code: f.Params[0]}
		return fmt.Sprintf("[%s] %s id=%d STATUS alarm=%s params=%s\n",
			timestamp, f.Revision, f.ID, alarm, FormatHex(f.Params[1:]))
	case f.Revision == V2:
		kind = Instruction(f.Code).String()
	default:
		// v1 requests and replies share a layout
		kind = fmt.Sprintf("%s|alarm=%s", Instruction(f.Code), Alarm{Revision: V1, Code: f.Code})
	}

	return fmt.Sprintf("[%s] %s id=%d %s params=%s\n", timestamp, f.Revision, f.ID, kind, FormatHex(f.Params))
}

// FormatStatus formats a decoded status frame
func FormatStatus(s *Status) string {
	if s == nil {
		return "no reply"
	}
	return fmt.Sprintf("id=%d alarm=%s params=%s", s.ID, s.Alarm, FormatHex(s.Params))
}

// FormatRequest formats a request
func FormatRequest(r *Request) string {
	target := fmt.Sprintf("%d", r.ID)
	if r.IsBroadcast() {
		target = "BROADCAST"
	}
	return fmt.Sprintf("%s id=%s %s params=%s", r.Revision, target, r.Instruction, FormatHex(r.Params))
}

// FormatFields formats register values of a model as an aligned table
func FormatFields(m *Model, values map[string]uint32) string {
	var sb strings.Builder
	for _, name := range m.FieldNames() {
		v, ok := values[name]
		if !ok {
			continue
		}
		f := m.Fields[name]
		fmt.Fprintf(&sb, "  %-24s @%-4d %-2s = %d (0x%0*X)\n", name, f.Address, f.Access, v, f.Size*2, v)
	}
	return sb.String()
}
