// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string
	flagValues = defaultSettings()

	// Resolved before any subcommand runs
	settings Settings
	logger   = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "dxlink",
	Short: "Half-duplex servo bus tool",
	Long: `dxlink - A CLI tool for driving and monitoring v1/v2 servo buses.

Provides commands to ping devices, read and write registers by address or by
control table field name, watch registers live, and monitor bus traffic.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 57600] [--direction rts|dtr|none]
  WebSocket: --url ws://host/path [--username user]
  Replay:    --replay capture.cbor

Settings may also come from a TOML file given with --config; flags given on
the command line take precedence over the file.

For WebSocket authentication, the password is read from the DXLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: resolveSettings,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "TOML config file")

	// Serial connection flags
	f.StringVarP(&flagValues.Port, "port", "p", "", "Serial port device")
	f.IntVarP(&flagValues.Baud, "baud", "b", flagValues.Baud, "Baud rate (serial only)")
	f.StringVar(&flagValues.Direction, "direction", flagValues.Direction, "Transmit enable line: rts, dtr or none")
	f.BoolVar(&flagValues.InvertDirection, "invert-direction", false, "Transmit enable is active low")

	// WebSocket connection flags
	f.StringVarP(&flagValues.URL, "url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	f.StringVar(&flagValues.Username, "username", "", "Username for HTTP Basic auth")
	f.BoolVar(&flagValues.NoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Protocol flags
	f.IntVar(&flagValues.Protocol, "protocol", flagValues.Protocol, "Protocol revision: 1 or 2")
	f.IntVar(&flagValues.Multiplicity, "multiplicity", flagValues.Multiplicity, "Frames per request on the wire: 0 none, 1 status, 2 echo + status")
	f.IntVar(&flagValues.EchoSize, "echo-size", 0, "Echo bytes to discard with multiplicity 2 (0 = request length)")
	f.IntVar(&flagValues.StatusLevel, "status-level", flagValues.StatusLevel, "Device status return level: 0 ping only, 1 reads, 2 all")
	f.DurationVar(&flagValues.Timeout, "timeout", flagValues.Timeout, "Reply timeout")

	// Capture flags
	f.StringVar(&flagValues.Trace, "trace", "", "Record transport traffic to a CBOR trace file")
	f.StringVar(&flagValues.Replay, "replay", "", "Replay a CBOR trace file instead of opening a bus")

	f.StringVar(&flagValues.Table, "table", "", "Control table TOML file (default: built-in)")
	f.StringVar(&flagValues.LogLevel, "log-level", flagValues.LogLevel, "Log level: debug, info, warn, error")
}

// resolveSettings merges defaults, the config file and explicit flags, and
// sets up the logger.
func resolveSettings(cmd *cobra.Command, args []string) error {
	s := defaultSettings()
	if configPath != "" {
		var err error
		s, err = loadSettings(configPath, s)
		if err != nil {
			return err
		}
	}
	s = overlayFlags(cmd.Flags(), s, flagValues)

	log, err := newLogger(os.Stderr, s.LogLevel, cmd.Flags().Changed("log-level"))
	if err != nil {
		return err
	}

	settings = s
	logger = log
	return nil
}

// overlayFlags copies the flags set on the command line from flags to s.
func overlayFlags(fs *pflag.FlagSet, s, flags Settings) Settings {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "port":
			s.Port = flags.Port
		case "baud":
			s.Baud = flags.Baud
		case "direction":
			s.Direction = flags.Direction
		case "invert-direction":
			s.InvertDirection = flags.InvertDirection
		case "url":
			s.URL = flags.URL
		case "username":
			s.Username = flags.Username
		case "no-ssl-verify":
			s.NoSSLVerify = flags.NoSSLVerify
		case "protocol":
			s.Protocol = flags.Protocol
		case "multiplicity":
			s.Multiplicity = flags.Multiplicity
		case "echo-size":
			s.EchoSize = flags.EchoSize
		case "status-level":
			s.StatusLevel = flags.StatusLevel
		case "timeout":
			s.Timeout = flags.Timeout
		case "trace":
			s.Trace = flags.Trace
		case "replay":
			s.Replay = flags.Replay
		case "table":
			s.Table = flags.Table
		case "log-level":
			s.LogLevel = flags.LogLevel
		}
	})
	return s
}

// parseID parses a device id; "broadcast" selects the broadcast id.
func parseID(s string) (uint8, error) {
	if strings.EqualFold(s, "broadcast") {
		return dxl.BroadcastID, nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || (v > dxl.MaxID && v != dxl.BroadcastID) {
		return 0, fmt.Errorf("invalid device id %q (0-%d, %d or broadcast)", s, dxl.MaxID, dxl.BroadcastID)
	}
	return uint8(v), nil
}

// parseUint parses a decimal or 0x-prefixed number of at most bits bits.
func parseUint(what, s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return v, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
