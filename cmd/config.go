// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/dxlink/pkg/dxl"
	"github.com/rs/zerolog"
)

// Settings is the resolved CLI configuration: defaults, then the config
// file, then flags given on the command line.
type Settings struct {
	Port        string
	URL         string
	Username    string
	NoSSLVerify bool

	Baud            int
	Protocol        int
	Multiplicity    int
	EchoSize        int
	StatusLevel     int
	Timeout         time.Duration
	Direction       string
	InvertDirection bool

	Trace    string
	Replay   string
	Table    string
	LogLevel string
}

func defaultSettings() Settings {
	return Settings{
		Baud:         57600,
		Protocol:     2,
		Multiplicity: 1,
		StatusLevel:  int(dxl.ReturnAll),
		Timeout:      dxl.DefaultTimeout,
		Direction:    string(dxl.DirectionRTS),
		LogLevel:     "warn",
	}
}

type fileConfig struct {
	Port            string `toml:"port"`
	URL             string `toml:"url"`
	Username        string `toml:"username"`
	NoSSLVerify     bool   `toml:"no_ssl_verify"`
	Baud            int    `toml:"baud"`
	Protocol        int    `toml:"protocol"`
	Multiplicity    int    `toml:"multiplicity"`
	EchoSize        int    `toml:"echo_size"`
	StatusLevel     int    `toml:"status_level"`
	Timeout         string `toml:"timeout"`
	Direction       string `toml:"direction"`
	InvertDirection bool   `toml:"invert_direction"`
	Table           string `toml:"table"`
	LogLevel        string `toml:"log_level"`
}

// loadSettings overlays the keys defined in the TOML file at path on s.
func loadSettings(path string, s Settings) (Settings, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Settings{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("port") {
		s.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("url") {
		s.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("username") {
		s.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("no_ssl_verify") {
		s.NoSSLVerify = raw.NoSSLVerify
	}
	if meta.IsDefined("baud") {
		s.Baud = raw.Baud
	}
	if meta.IsDefined("protocol") {
		s.Protocol = raw.Protocol
	}
	if meta.IsDefined("multiplicity") {
		s.Multiplicity = raw.Multiplicity
	}
	if meta.IsDefined("echo_size") {
		s.EchoSize = raw.EchoSize
	}
	if meta.IsDefined("status_level") {
		s.StatusLevel = raw.StatusLevel
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return Settings{}, fmt.Errorf("parse timeout: %w", err)
		}
		s.Timeout = d
	}
	if meta.IsDefined("direction") {
		s.Direction = strings.TrimSpace(raw.Direction)
	}
	if meta.IsDefined("invert_direction") {
		s.InvertDirection = raw.InvertDirection
	}
	if meta.IsDefined("table") {
		s.Table = strings.TrimSpace(raw.Table)
	}
	if meta.IsDefined("log_level") {
		s.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return s, nil
}

// ConnConfig builds the protocol configuration of a connection.
func (s Settings) ConnConfig() (dxl.Config, error) {
	var rev dxl.Revision
	switch s.Protocol {
	case 1:
		rev = dxl.V1
	case 2:
		rev = dxl.V2
	default:
		return dxl.Config{}, fmt.Errorf("%w: protocol %d (use 1 or 2)", dxl.ErrConfig, s.Protocol)
	}
	if s.StatusLevel < 0 || s.StatusLevel > int(dxl.ReturnAll) {
		return dxl.Config{}, fmt.Errorf("%w: status level %d (valid 0-2)", dxl.ErrConfig, s.StatusLevel)
	}

	cfg := dxl.Config{
		Revision:          rev,
		Multiplicity:      s.Multiplicity,
		EchoSize:          s.EchoSize,
		StatusReturnLevel: dxl.StatusReturnLevel(s.StatusLevel),
	}
	return cfg, cfg.Validate()
}

// SerialConfig builds the local adapter configuration.
func (s Settings) SerialConfig() (dxl.SerialConfig, error) {
	mode, err := dxl.ParseDirectionMode(s.Direction)
	if err != nil {
		return dxl.SerialConfig{}, err
	}
	if s.Baud <= 0 {
		return dxl.SerialConfig{}, fmt.Errorf("%w: baud rate %d", dxl.ErrConfig, s.Baud)
	}

	cfg := dxl.DefaultSerialConfig(s.Port)
	cfg.BaudRate = s.Baud
	cfg.Direction = mode
	cfg.InvertDirection = s.InvertDirection
	cfg.Timeout = s.Timeout
	return cfg, nil
}

// ControlTable returns the table named by --table, or the built-in one.
func (s Settings) ControlTable() (*dxl.ControlTable, error) {
	if s.Table == "" {
		return dxl.DefaultControlTable(), nil
	}
	return dxl.LoadControlTable(s.Table)
}

// newLogger writes human-readable logs to w. DXLINK_LOG_LEVEL overrides
// level unless level was given explicitly.
func newLogger(w io.Writer, level string, explicit bool) (zerolog.Logger, error) {
	if env := strings.TrimSpace(os.Getenv("DXLINK_LOG_LEVEL")); env != "" && !explicit {
		level = env
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "dxlink").Logger(), nil
}
