// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	"golang.org/x/term"
)

// Bus is an open connection to a servo bus, local or bridged.
type Bus struct {
	Conn *dxl.Conn
	// Port is the raw byte channel, nil when replaying a trace
	Port dxl.Port
	Info string

	trace   *dxl.TraceTransport
	replay  *dxl.ReplayTransport
	closers []io.Closer
}

// Close closes the port and the trace file, reporting trace write errors.
func (b *Bus) Close() error {
	var errs []error
	if b.trace != nil {
		if err := b.trace.Err(); err != nil {
			errs = append(errs, fmt.Errorf("trace: %w", err))
		}
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.replay != nil && b.replay.Remaining() > 0 {
		logger.Warn().Int("records", b.replay.Remaining()).Msg("replay ended before the trace")
	}
	return errors.Join(errs...)
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("DXLINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenTransport opens the serial port or WebSocket bridge named by s.
func OpenTransport(s Settings) (*dxl.SerialTransport, string, error) {
	if s.URL != "" {
		password := ""
		if s.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		port, err := dxl.DialWebSocket(ctx, dxl.WebSocketConfig{
			URL:           s.URL,
			Username:      s.Username,
			Password:      password,
			SkipSSLVerify: s.NoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return dxl.NewSerialTransport(port, nil, s.Timeout, 0), fmt.Sprintf("WebSocket: %s", s.URL), nil
	}

	if s.Port != "" {
		cfg, err := s.SerialConfig()
		if err != nil {
			return nil, "", err
		}
		tr, err := dxl.OpenSerial(cfg)
		if err != nil {
			return nil, "", err
		}
		return tr, fmt.Sprintf("Serial: %s @ %d baud, direction %s", s.Port, s.Baud, cfg.Direction), nil
	}

	return nil, "", fmt.Errorf("either --port, --url or --replay must be specified")
}

// OpenBus opens a transport, wraps it for tracing when requested and starts
// a transaction engine on it.
func OpenBus(s Settings) (*Bus, error) {
	cfg, err := s.ConnConfig()
	if err != nil {
		return nil, err
	}
	cfg.Logger = &logger

	b := &Bus{}
	var tr dxl.Transport

	if s.Replay != "" {
		f, err := os.Open(s.Replay)
		if err != nil {
			return nil, fmt.Errorf("open replay: %w", err)
		}
		records, err := dxl.ReadTrace(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		b.replay = dxl.NewReplayTransport(records)
		b.Info = fmt.Sprintf("Replay: %s (%d records)", s.Replay, len(records))
		tr = b.replay
	} else {
		st, info, err := OpenTransport(s)
		if err != nil {
			return nil, err
		}
		b.Port = st.Port()
		b.Info = info
		b.closers = append(b.closers, st)
		tr = st
	}

	if s.Trace != "" {
		f, err := os.Create(s.Trace)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("create trace: %w", err)
		}
		b.closers = append(b.closers, f)
		b.trace = dxl.NewTraceTransport(tr, f)
		tr = b.trace
	}

	b.Conn, err = dxl.NewConn(tr, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}

	logger.Info().Str("bus", b.Info).Str("protocol", cfg.Revision.String()).
		Int("multiplicity", cfg.Multiplicity).Msg("bus open")
	return b, nil
}

// openBusOrExit opens the bus and exits with status 2 on failure.
func openBusOrExit() *Bus {
	b, err := OpenBus(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	return b
}
