// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch ID MODEL [FIELD...]",
	Short: "Interactive TUI for watching and setting a device's registers",
	Long: `Poll control table fields of one device and show them live.

Without FIELD arguments every field of MODEL is polled. The field list shows
the latest value of each field; select a writable field, Tab to the value
input, type a value and press Enter to write it.

Features:
  - Live register values
  - Writes through the control table (read-only fields are refused)
  - Transaction statistics
  - Event logging
  - Automatic reconnection on connection loss

Tab switches between the field list, the value input and the write button.
Arrow keys navigate the field list.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 500*time.Millisecond, "Polling interval")
}

// pollManager owns the bus for the watch TUI. Every transaction goes through
// mu, since a Conn runs one transaction at a time.
type pollManager struct {
	mu     sync.Mutex
	bus    *Bus
	regs   *dxl.Registers
	model  *dxl.Model
	id     uint8
	fields []string

	interval time.Duration
	p        *tea.Program
	done     chan struct{}
}

// Messages sent by the poll manager
type pollResultMsg struct {
	values   map[string]uint32
	errs     map[string]error
	counters dxl.Counters
}

type writeResultMsg struct {
	field  string
	value  uint32
	status *dxl.Status
	err    error
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

func runWatch(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if id == dxl.BroadcastID {
		return fmt.Errorf("watch needs a single device id, not broadcast")
	}
	bus, regs, err := openRegisters(args[1])
	if err != nil {
		return err
	}

	model := regs.Model()
	fields := model.FieldNames()
	if len(args) > 2 {
		fields = fields[:0]
		for _, name := range args[2:] {
			if _, err := model.Field(name); err != nil {
				bus.Close()
				return err
			}
			fields = append(fields, strings.ToLower(name))
		}
	}

	pm := &pollManager{
		bus:      bus,
		regs:     regs,
		model:    model,
		id:       id,
		fields:   fields,
		interval: watchInterval,
		done:     make(chan struct{}),
	}

	m := initialWatchModel(pm, bus.Info)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	pm.p = p

	go pm.pollLoop()

	_, runErr := p.Run()
	close(pm.done)

	pm.mu.Lock()
	closeErr := pm.bus.Close()
	pm.mu.Unlock()

	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return closeErr
}

// poll reads every watched field once
func (pm *pollManager) poll() pollResultMsg {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	values, errs := readFields(pm.regs, pm.id, pm.fields)
	return pollResultMsg{
		values:   values,
		errs:     errs,
		counters: pm.bus.Conn.Stats().Snapshot(),
	}
}

// pollLoop polls on every tick and reconnects when the bus fails
func (pm *pollManager) pollLoop() {
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.done:
			return
		case <-ticker.C:
		}

		res := pm.poll()
		pm.p.Send(res)

		if err := transportFailure(res.errs); err != nil {
			pm.p.Send(connectionLostMsg{err: err})
			if !pm.reconnect() {
				return // Shutdown requested during reconnect
			}
		}
	}
}

// transportFailure returns the first error that means the bus is gone
func transportFailure(errs map[string]error) error {
	for _, err := range errs {
		if errors.Is(err, dxl.ErrTransport) || errors.Is(err, dxl.ErrConnectionClosed) {
			return err
		}
	}
	return nil
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (pm *pollManager) reconnect() bool {
	pm.mu.Lock()
	pm.bus.Close()
	pm.mu.Unlock()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-pm.done:
			return false
		case <-time.After(backoff):
		}

		bus, err := OpenBus(settings)
		if err == nil {
			regs, err := dxl.NewRegisters(bus.Conn, pm.model)
			if err != nil {
				bus.Close()
				return false
			}

			pm.mu.Lock()
			pm.bus = bus
			pm.regs = regs
			pm.mu.Unlock()

			pm.p.Send(reconnectedMsg{connInfo: bus.Info})
			return true
		}
		logger.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// write returns a command that writes one field and reports the outcome
func (pm *pollManager) write(field string, value uint32) tea.Cmd {
	return func() tea.Msg {
		pm.mu.Lock()
		defer pm.mu.Unlock()

		status, err := pm.regs.Set(pm.id, field, value)
		return writeResultMsg{field: field, value: value, status: status, err: err}
	}
}
