// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	errorsOnly    bool
	statsInterval time.Duration
	useTUI        bool
	waitTimeout   time.Duration
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Monitor bus traffic without transmitting",
	Long: `Decode and display every frame seen on the bus, requests and replies alike.

The bus is only listened to; nothing is transmitted, so this can run next to
another controller. Frames failing their checksum or CRC, and frames with a
bad length, are reported as errors. Errors before the first valid frame are
counted but not reported, since the monitor may have started mid-frame.

With --wait the command exits as soon as one valid frame is seen:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().BoolVar(&errorsOnly, "errors-only", false, "Only show errors, not valid frames")
	sniffCmd.Flags().DurationVar(&statsInterval, "stats-interval", 10*time.Second, "Statistics summary interval (text mode)")
	sniffCmd.Flags().BoolVar(&useTUI, "tui", false, "Use terminal UI")
	sniffCmd.Flags().DurationVar(&waitTimeout, "wait", 0, "Exit after the first valid frame, or fail after this long")
}

// monitorStats counts frames seen by a passive monitor
type monitorStats struct {
	StartTime time.Time

	Frames          uint64
	Requests        uint64 // v2 only
	Statuses        uint64 // v2 only
	Alarms          uint64 // v2 statuses with a non-zero error byte
	IntegrityErrors uint64
	FramingErrors   uint64

	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

func newMonitorStats() *monitorStats {
	return &monitorStats{StartTime: time.Now()}
}

// Update records one decoded frame or one decode error
func (s *monitorStats) Update(f *dxl.Frame, err error) {
	switch {
	case err != nil && errors.Is(err, dxl.ErrIntegrity):
		s.IntegrityErrors++
	case err != nil:
		s.FramingErrors++
	case f != nil:
		s.Frames++
		if f.Revision != dxl.V2 {
			return
		}
		if f.IsStatus() {
			s.Statuses++
			if len(f.Params) > 0 && f.Params[0] != 0 {
				s.Alarms++
			}
		} else {
			s.Requests++
		}
	}
}

// Errors returns the number of bad frames
func (s *monitorStats) Errors() uint64 {
	return s.IntegrityErrors + s.FramingErrors
}

// CalculateRates updates the per-second rates
func (s *monitorStats) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.Frames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

func (s *monitorStats) String() string {
	s.CalculateRates()
	total := s.Frames + s.Errors()
	percent := func(n uint64) float64 {
		if total == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(total)
	}

	result := fmt.Sprintf("=== Bus Statistics (%s) ===\n", formatUptime(uint64(time.Since(s.StartTime).Milliseconds())))
	result += fmt.Sprintf("Frames:           %8d (%.1f%%)\n", s.Frames, percent(s.Frames))
	if s.Requests > 0 || s.Statuses > 0 {
		result += fmt.Sprintf("  Requests:       %8d\n", s.Requests)
		result += fmt.Sprintf("  Statuses:       %8d\n", s.Statuses)
	}
	if s.Alarms > 0 {
		result += fmt.Sprintf("  Alarms:         %8d\n", s.Alarms)
	}
	if s.IntegrityErrors > 0 {
		result += fmt.Sprintf("Integrity Errors: %8d (%.1f%%)\n", s.IntegrityErrors, percent(s.IntegrityErrors))
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:   %8d (%.1f%%)\n", s.FramingErrors, percent(s.FramingErrors))
	}
	result += fmt.Sprintf("Frame Rate:       %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:       %8.1f errors/sec\n", s.ErrorRate)
	result += "==============================\n"
	return result
}

// monitorEvent is one observation of the bus monitor
type monitorEvent struct {
	frame *dxl.Frame
	err   error
	// set on the first valid frame
	synced  bool
	skipped int
}

// busMonitor feeds bytes read from a port through a Sniffer
type busMonitor struct {
	port         dxl.Port
	sniffer      *dxl.Sniffer
	synchronized bool
	skipped      int
}

func newBusMonitor(port dxl.Port, rev dxl.Revision) *busMonitor {
	return &busMonitor{port: port, sniffer: dxl.NewSniffer(rev)}
}

// feed decodes data and emits frames and errors. Errors before the first
// valid frame are only counted.
func (m *busMonitor) feed(data []byte, emit func(monitorEvent)) {
	for _, r := range m.sniffer.Feed(data) {
		switch {
		case r.Err != nil && !m.synchronized:
			m.skipped++
		case r.Err != nil:
			emit(monitorEvent{err: r.Err})
		default:
			ev := monitorEvent{frame: r.Frame}
			if !m.synchronized {
				m.synchronized = true
				ev.synced = true
				ev.skipped = m.skipped
			}
			emit(ev)
		}
	}
}

// run reads until ctx is done or the port fails.
func (m *busMonitor) run(ctx context.Context, emit func(monitorEvent)) error {
	if err := m.port.SetReadTimeout(100 * time.Millisecond); err != nil {
		return err
	}
	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := m.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		m.feed(buf[:n], emit)
	}
}

func runSniff(cmd *cobra.Command, args []string) error {
	if settings.Replay != "" {
		return fmt.Errorf("sniff needs a live bus; --replay only works with commands that transact")
	}
	cfg, err := settings.ConnConfig()
	if err != nil {
		return err
	}

	tr, info, err := OpenTransport(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer tr.Close()
	if settings.Trace != "" {
		logger.Warn().Msg("--trace records transactions and is ignored by sniff")
	}

	mon := newBusMonitor(tr.Port(), cfg.Revision)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case waitTimeout > 0:
		return runWaitMode(ctx, mon, info)
	case useTUI:
		return runTUIMode(ctx, mon, info, cfg.Revision)
	default:
		return runTextMode(ctx, mon, info, cfg.Revision)
	}
}

// runWaitMode waits for the first valid frame
func runWaitMode(ctx context.Context, mon *busMonitor, info string) error {
	fmt.Printf("dxlink - Frame Test\n")
	fmt.Printf("Connection: %s\n", info)
	fmt.Printf("Timeout: %v\n", waitTimeout)
	fmt.Printf("Waiting for a valid frame...\n\n")

	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	var got *dxl.Frame
	err := mon.run(ctx, func(ev monitorEvent) {
		if ev.frame != nil && got == nil {
			got = ev.frame
			if ev.skipped > 0 {
				fmt.Printf("(skipped %d bad frames before sync)\n", ev.skipped)
			}
			cancel()
		}
	})

	switch {
	case got != nil:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Print("  " + dxl.FormatFrame(got))
		fmt.Printf("  Raw: %s\n", dxl.FormatHex(got.Raw))
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %v\n", waitTimeout)
		os.Exit(1)
	}
	return nil
}

// runTextMode prints frames as they arrive with periodic statistics
func runTextMode(ctx context.Context, mon *busMonitor, info string, rev dxl.Revision) error {
	fmt.Printf("dxlink - Bus Monitor (%s)\n", rev)
	fmt.Printf("Connection: %s\n", info)
	fmt.Printf("Statistics interval: %v\n", statsInterval)
	if errorsOnly {
		fmt.Printf("Mode: Errors only\n")
	} else {
		fmt.Printf("Mode: All frames\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var mu sync.Mutex
	stats := newMonitorStats()

	if statsInterval > 0 {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					mu.Lock()
					fmt.Printf("\n%s\n", stats.String())
					mu.Unlock()
				}
			}
		}()
	}

	err := mon.run(ctx, func(ev monitorEvent) {
		mu.Lock()
		defer mu.Unlock()

		stats.Update(ev.frame, ev.err)
		if ev.synced {
			if ev.skipped > 0 {
				fmt.Printf("[SYNC] Synchronized after skipping %d bad frames\n\n", ev.skipped)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}
		}
		switch {
		case ev.err != nil:
			printDecodeError(ev.err)
		case !errorsOnly:
			fmt.Print(dxl.FormatFrame(ev.frame))
		case ev.frame.IsStatus() && len(ev.frame.Params) > 0 && ev.frame.Params[0] != 0:
			// Alarms count as errors in errors-only mode
			fmt.Print(dxl.FormatFrame(ev.frame))
		}
	})

	mu.Lock()
	fmt.Printf("\n%s", stats.String())
	mu.Unlock()

	if err != nil && !errors.Is(err, dxl.ErrConnectionClosed) {
		return fmt.Errorf("read error: %w", err)
	}
	return nil
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
}

// runTUIMode runs the bus monitor in TUI mode
func runTUIMode(ctx context.Context, mon *busMonitor, info string, rev dxl.Revision) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialMonitorModel(info, rev, !errorsOnly)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		err := mon.run(ctx, func(ev monitorEvent) {
			p.Send(monitorEventMsg(ev))
		})
		if err != nil {
			p.Send(monitorClosedMsg{err: err})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
