// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// dxlink - Half-duplex servo bus tool
//
// A CLI tool for talking to v1/v2 servo buses over a local serial adapter
// or a WebSocket bridge, and for monitoring bus traffic.

package main

import (
	"os"

	"github.com/Thermoquad/dxlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
