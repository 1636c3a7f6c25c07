// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Focus states
const (
	focusFieldList = iota
	focusValueInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// fieldItem is one row of the field list
type fieldItem struct {
	name  string
	field dxl.Field
	value uint32
	has   bool
	err   error
}

// Implement list.Item interface
func (f fieldItem) Title() string { return f.name }
func (f fieldItem) Description() string {
	switch {
	case f.err != nil:
		return fmt.Sprintf("@%d %s  error", f.field.Address, f.field.Access)
	case !f.has:
		return fmt.Sprintf("@%d %s  -", f.field.Address, f.field.Access)
	default:
		return fmt.Sprintf("@%d %s  %d", f.field.Address, f.field.Access, f.value)
	}
}
func (f fieldItem) FilterValue() string { return f.name }

// watchModel is the Bubble Tea model for the watch TUI
type watchModel struct {
	pm       *pollManager
	connInfo string

	fieldList list.Model
	values    map[string]uint32
	errs      map[string]error
	lastPoll  time.Time
	counters  dxl.Counters
	started   time.Time

	valueInput   textinput.Model
	focusedField int

	log            eventLog
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialWatchModel(pm *pollManager, connInfo string) watchModel {
	ti := textinput.New()
	ti.Placeholder = "0"
	ti.CharLimit = 10
	ti.Width = 12

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	fieldList := list.New([]list.Item{}, delegate, 36, 10)
	fieldList.Title = fmt.Sprintf("%s id=%d", pm.model.Name, pm.id)
	fieldList.SetShowStatusBar(false)
	fieldList.SetShowHelp(false)
	fieldList.SetFilteringEnabled(false)

	m := watchModel{
		pm:           pm,
		connInfo:     connInfo,
		fieldList:    fieldList,
		values:       make(map[string]uint32),
		errs:         make(map[string]error),
		started:      time.Now(),
		valueInput:   ti,
		focusedField: focusFieldList,
		log:          newEventLog(100),
		width:        80,
		height:       24,
	}
	m.updateFieldList()
	m.log.add(fmt.Sprintf("Watching %d field(s) every %v", len(pm.fields), pm.interval), false)
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m watchModel) Init() tea.Cmd {
	return nil
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.fieldList, _ = m.fieldList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case pollResultMsg:
		m.processPoll(msg)

	case writeResultMsg:
		switch {
		case msg.err != nil:
			m.log.add(fmt.Sprintf("Write %s=%d failed: %v", msg.field, msg.value, msg.err), true)
		case msg.status != nil && msg.status.Alarm.Active():
			m.log.add(fmt.Sprintf("Write %s=%d: alarm %s", msg.field, msg.value, msg.status.Alarm), true)
		default:
			m.log.add(fmt.Sprintf("Wrote %s=%d", msg.field, msg.value), false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.log.add(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.log.add("Reconnected", false)
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusValueInput {
		m.valueInput, cmd = m.valueInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.focusedField == focusFieldList {
		m.fieldList, cmd = m.fieldList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m watchModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusValueInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		return m.handleEnter()

	case "up", "k", "down", "j":
		if m.focusedField == focusFieldList {
			m.fieldList, _ = m.fieldList.Update(msg)
			return m, nil
		}
	}

	// Pass through to focused component
	if m.focusedField == focusValueInput {
		var cmd tea.Cmd
		m.valueInput, cmd = m.valueInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *watchModel) cycleFocus(delta int) {
	selected := m.selectedField()
	if selected == nil || !selected.field.Writable() {
		// Nothing to write, keep focus on the list
		m.focusedField = focusFieldList
		m.valueInput.Blur()
		return
	}

	m.focusedField = (m.focusedField + delta + focusButton + 1) % (focusButton + 1)
	if m.focusedField == focusValueInput {
		m.valueInput.Focus()
	} else {
		m.valueInput.Blur()
	}
}

func (m watchModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.focusedField == focusFieldList {
		return m, nil
	}
	// Don't send writes while connection is lost
	if m.connectionLost {
		m.log.add("Cannot write: connection lost", true)
		return m, nil
	}

	selected := m.selectedField()
	if selected == nil {
		return m, nil
	}
	if !selected.field.Writable() {
		m.log.add(fmt.Sprintf("%s is read-only", selected.name), true)
		return m, nil
	}

	v, err := parseUint("value", strings.TrimSpace(m.valueInput.Value()), 32)
	if err != nil {
		m.log.add(err.Error(), true)
		return m, nil
	}

	m.valueInput.SetValue("")
	m.focusedField = focusFieldList
	m.valueInput.Blur()
	return m, m.pm.write(selected.name, uint32(v))
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := newTUIStyles()

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)
	focusedButtonStyle := buttonStyle.Background(lipgloss.Color("10"))

	var s strings.Builder

	// Header
	s.WriteString(st.title.Render("DXLINK WATCH"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = st.warning.Render("RECONNECTING...")
	}
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=write", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (fields) | right panel (selected field)
	leftWidth := 38
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 20 {
		rightWidth = 20
	}

	listStyle := st.box.Width(leftWidth)
	if m.focusedField == focusFieldList {
		listStyle = st.focusedBox.Width(leftWidth)
	}
	fieldPanel := listStyle.Render(m.fieldList.View())
	detailPanel := st.box.Width(rightWidth).Render(m.renderDetail(st, buttonStyle, focusedButtonStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, fieldPanel, " ", detailPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(st))
	s.WriteString("\n\n")

	s.WriteString(m.log.render(st, m.width-4, 8))
	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m watchModel) renderDetail(st tuiStyles, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.selectedField()
	if selected == nil {
		s.WriteString(st.header.Render("No field selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Field:"), selected.name))
	s.WriteString(fmt.Sprintf("%s %d, %d byte(s), %s\n",
		st.label.Render("Address:"), selected.field.Address, selected.field.Size, selected.field.Access))

	switch {
	case selected.err != nil:
		s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Value:"), st.err.Render(selected.err.Error())))
	case selected.has:
		s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Value:"),
			st.value.Render(fmt.Sprintf("%d (0x%0*X)", selected.value, selected.field.Size*2, selected.value))))
	default:
		s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Value:"), st.header.Render("waiting for first poll")))
	}
	if !m.lastPoll.IsZero() {
		s.WriteString(st.header.Render(fmt.Sprintf("polled %s", m.lastPoll.Format("15:04:05.000"))))
	}
	s.WriteString("\n\n")

	if !selected.field.Writable() {
		s.WriteString(st.header.Render("read-only"))
		return s.String()
	}

	s.WriteString(st.label.Render("New value: "))
	if m.focusedField == focusValueInput {
		s.WriteString(m.valueInput.View())
	} else {
		val := m.valueInput.Value()
		if val == "" {
			val = m.valueInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	btnText := "[ Write ]"
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}
	return s.String()
}

func (m watchModel) renderStatisticsBar(st tuiStyles) string {
	c := m.counters
	var okPercent float64
	if c.Transactions > 0 {
		okPercent = float64(c.Replies+c.NoReply) * 100.0 / float64(c.Transactions)
	}
	errors := st.value.Render("0")
	if c.Errors() > 0 {
		errors = st.err.Render(fmt.Sprintf("%d", c.Errors()))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		st.label.Render("Transactions:"), st.value.Render(fmt.Sprintf("%d", c.Transactions)),
		st.label.Render("OK:"), st.value.Render(fmt.Sprintf("%.1f%%", okPercent)),
		st.label.Render("Errors:"), errors,
		st.label.Render("Rate:"), st.value.Render(fmt.Sprintf("%.1f/s", c.TransactionRate)),
		st.label.Render("Uptime:"), st.value.Render(formatUptime(uint64(time.Since(m.started).Milliseconds()))),
	)
	return st.box.Width(m.width - 4).Render(content)
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *watchModel) processPoll(msg pollResultMsg) {
	m.lastPoll = time.Now()
	m.counters = msg.counters

	for name, v := range msg.values {
		m.values[name] = v
		if _, failed := m.errs[name]; failed {
			delete(m.errs, name)
			m.log.add(fmt.Sprintf("%s readable again", name), false)
		}
	}
	for name, err := range msg.errs {
		if _, failed := m.errs[name]; !failed {
			m.log.add(fmt.Sprintf("Read %s failed: %v", name, err), true)
		}
		m.errs[name] = err
	}
	m.updateFieldList()
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *watchModel) selectedField() *fieldItem {
	item, ok := m.fieldList.SelectedItem().(fieldItem)
	if !ok {
		return nil
	}
	return &item
}

func (m *watchModel) updateFieldList() {
	items := make([]list.Item, len(m.pm.fields))
	for i, name := range m.pm.fields {
		v, has := m.values[name]
		items[i] = fieldItem{
			name:  name,
			field: m.pm.model.Fields[name],
			value: v,
			has:   has,
			err:   m.errs[name],
		}
	}
	m.fieldList.SetItems(items)
}

func (m *watchModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height - 18
	if listHeight < 6 {
		listHeight = 6
	}
	m.fieldList.SetSize(36, listHeight)
}
