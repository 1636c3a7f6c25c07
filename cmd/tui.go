// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tuiStyles is the palette shared by the terminal UIs
type tuiStyles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	label      lipgloss.Style
	value      lipgloss.Style
	err        lipgloss.Style
	warning    lipgloss.Style
	box        lipgloss.Style
	focusedBox lipgloss.Style
}

func newTUIStyles() tuiStyles {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	return tuiStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		label:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		value:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box:        box,
		focusedBox: box.BorderForeground(lipgloss.Color("12")),
	}
}

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// eventLog keeps the most recent entries
type eventLog struct {
	entries []logEntry
	max     int
}

func newEventLog(max int) eventLog {
	return eventLog{entries: make([]logEntry, 0), max: max}
}

func (l *eventLog) add(message string, isError bool) {
	l.entries = append(l.entries, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// render shows the last height entries in a box of the given width
func (l eventLog) render(st tuiStyles, width, height int) string {
	var s strings.Builder
	s.WriteString(st.label.Render("EVENTS"))
	s.WriteString("\n")

	if height < 1 {
		height = 1
	}
	startIdx := len(l.entries) - height
	if startIdx < 0 {
		startIdx = 0
	}

	var content strings.Builder
	if len(l.entries) == 0 {
		content.WriteString(st.header.Render("  (no events yet)"))
	} else {
		for _, entry := range l.entries[startIdx:] {
			icon, style := "i", st.warning
			if entry.isError {
				icon, style = "x", st.err
			}
			content.WriteString(fmt.Sprintf("%s %s %s\n",
				st.header.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	if width < 20 {
		width = 20
	}
	s.WriteString(st.box.Width(width).Render(content.String()))
	return s.String()
}

// formatUptime formats a duration in milliseconds to a human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

//////////////////////////////////////////////////////////////
// Bus monitor TUI
//////////////////////////////////////////////////////////////

// monitorModel is the Bubble Tea model of "sniff --tui"
type monitorModel struct {
	connInfo     string
	rev          dxl.Revision
	showAll      bool
	stats        *monitorStats
	log          eventLog
	synchronized bool
	skipped      int
	closedErr    error
	width        int
	height       int
	quitting     bool
}

// Messages
type tickMsg time.Time
type monitorEventMsg monitorEvent
type monitorClosedMsg struct {
	err error
}

func initialMonitorModel(connInfo string, rev dxl.Revision, showAll bool) monitorModel {
	return monitorModel{
		connInfo: connInfo,
		rev:      rev,
		showAll:  showAll,
		stats:    newMonitorStats(),
		log:      newEventLog(100),
		width:    80,
		height:   24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case monitorClosedMsg:
		m.closedErr = msg.err
		m.log.add(fmt.Sprintf("Connection closed: %v", msg.err), true)

	case monitorEventMsg:
		m.stats.Update(msg.frame, msg.err)
		if msg.synced {
			m.synchronized = true
			m.skipped = msg.skipped
			if msg.skipped > 0 {
				m.log.add(fmt.Sprintf("Synchronized after skipping %d bad frames", msg.skipped), false)
			} else {
				m.log.add("Synchronized", false)
			}
		}
		switch {
		case msg.err != nil:
			m.log.add(fmt.Sprintf("DECODE ERROR: %v", msg.err), true)
		case msg.frame.IsStatus() && len(msg.frame.Params) > 0 && msg.frame.Params[0] != 0:
			m.log.add(strings.TrimSpace(dxl.FormatFrame(msg.frame)), true)
		case m.showAll:
			m.log.add(strings.TrimSpace(dxl.FormatFrame(msg.frame)), false)
		}
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := newTUIStyles()

	// Header
	var s strings.Builder
	s.WriteString(st.title.Render("DXLINK - BUS MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(st.header.Render(fmt.Sprintf("%s | %s | Mode: %s | Press 'q' to quit", m.connInfo, m.rev, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.closedErr != nil:
		s.WriteString(st.err.Render("Connection closed"))
	case !m.synchronized:
		s.WriteString(st.warning.Render("Waiting for synchronization..."))
	default:
		s.WriteString(st.value.Render("Synchronized"))
		if m.skipped > 0 {
			s.WriteString(st.header.Render(fmt.Sprintf(" (skipped %d bad frames)", m.skipped)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	total := m.stats.Frames + m.stats.Errors()
	var validPercent, errorPercent float64
	if total > 0 {
		validPercent = float64(m.stats.Frames) * 100.0 / float64(total)
		errorPercent = float64(m.stats.Errors()) * 100.0 / float64(total)
	}

	var statsContent strings.Builder
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		st.label.Render("Total:"), st.value.Render(fmt.Sprintf("%d", total)),
		st.label.Render("Valid:"), st.value.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.Frames, validPercent)),
		st.label.Render("Errors:"), st.err.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.Errors(), errorPercent)),
	))
	if m.rev == dxl.V2 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			st.label.Render("Requests:"), st.value.Render(fmt.Sprintf("%d", m.stats.Requests)),
			st.label.Render("Statuses:"), st.value.Render(fmt.Sprintf("%d", m.stats.Statuses)),
			st.label.Render("Alarms:"), st.warning.Render(fmt.Sprintf("%d", m.stats.Alarms)),
		))
	}
	if m.stats.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			st.label.Render("Integrity:"), st.err.Render(fmt.Sprintf("%d", m.stats.IntegrityErrors)),
			st.label.Render("Framing:"), st.err.Render(fmt.Sprintf("%d", m.stats.FramingErrors)),
		))
	}
	errRate := st.value.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
	if m.stats.ErrorRate > 0 {
		errRate = st.err.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		st.label.Render("Frame Rate:"), st.value.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		st.label.Render("Error Rate:"), errRate,
		st.label.Render("Uptime:"), st.value.Render(formatUptime(uint64(time.Since(m.stats.StartTime).Milliseconds()))),
	))

	s.WriteString(st.box.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Reserve space for header and stats
	s.WriteString(m.log.render(st, m.width-4, m.height-15))
	return s.String()
}
