// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/pdslink/pkg/board"
	"github.com/Thermoquad/pdslink/pkg/obc"
	"github.com/Thermoquad/pdslink/pkg/tinyproto"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusCommandList = iota
	focusPayloadInput
	focusCount
)

// failures in a row before the link is shown as lost
const linkLostAfter = 3

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// commandItem is one entry of the command list
type commandItem struct {
	id      byte
	name    string
	payload int
	ping    bool
}

// Implement list.Item interface
func (c commandItem) Title() string { return c.name }
func (c commandItem) Description() string {
	if c.ping {
		return "framed ping"
	}
	return fmt.Sprintf("0x%02X, %d byte payload", c.id, c.payload)
}
func (c commandItem) FilterValue() string { return c.name }

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// linkStats counts the monitor's own traffic
type linkStats struct {
	polls        uint64
	pollFailures uint64
	commands     uint64
	cmdFailures  uint64
	lastLatency  time.Duration
	failStreak   int
	started      time.Time
	lastSuccess  time.Time
}

func (s linkStats) pollRate() float64 {
	secs := time.Since(s.started).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.polls) / secs
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	link     *boardLink
	connInfo string
	sim      *simBoard
	interval time.Duration
	channels int

	commandList  list.Model
	payloadInput textinput.Model
	focusedField int

	status       obc.SystemStatus
	hasStatus    bool
	readings     []obc.Reading
	lastResponse string
	stats        linkStats
	polling      bool
	busy         bool

	eventLog      []logEntry
	maxLogEntries int

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type pollResultMsg struct {
	status   obc.SystemStatus
	readings []obc.Reading
	latency  time.Duration
	err      error
}

type commandResultMsg struct {
	name     string
	response string
	err      error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func commandItems(table *board.CommandTable, framed bool) []list.Item {
	var items []list.Item
	if framed {
		items = append(items, commandItem{name: "PING", ping: true})
	}
	for _, d := range table.All() {
		if framed && d.PlainOnly {
			continue
		}
		items = append(items, commandItem{id: d.ID, name: d.Name, payload: d.PayloadLength})
	}
	return items
}

func initialMonitorModel(link *boardLink, connInfo string, sim *simBoard, interval time.Duration, channels int) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "hex payload"
	ti.CharLimit = 2 * board.BufferSize
	ti.Width = 30

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	commandList := list.New(commandItems(link.c.Commands(), link.c.Framed()), delegate, 30, 14)
	commandList.Title = "Commands"
	commandList.SetShowStatusBar(false)
	commandList.SetShowHelp(false)
	commandList.SetFilteringEnabled(false)

	if interval <= 0 {
		interval = time.Second
	}
	return monitorModel{
		link:          link,
		connInfo:      connInfo,
		sim:           sim,
		interval:      interval,
		channels:      channels,
		commandList:   commandList,
		payloadInput:  ti,
		focusedField:  focusCommandList,
		stats:         linkStats{started: time.Now()},
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTickCmd(m.interval), textinput.Blink)
}

func monitorTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.commandList.SetSize(30, max(6, m.height-24))

	case monitorTickMsg:
		cmds = append(cmds, monitorTickCmd(m.interval))
		// skip the tick while the previous poll is still on the bus
		if !m.polling {
			m.polling = true
			cmds = append(cmds, pollBoard(m.link, m.channels))
		}

	case pollResultMsg:
		m.polling = false
		m.applyPoll(msg)

	case commandResultMsg:
		m.busy = false
		m.stats.commands++
		if msg.err != nil {
			m.stats.cmdFailures++
			m.lastResponse = fmt.Sprintf("%s: %v", msg.name, msg.err)
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.name, msg.err), true)
		} else {
			m.lastResponse = fmt.Sprintf("%s: %s", msg.name, msg.response)
			m.addLogEntry(fmt.Sprintf("%s -> %s", msg.name, msg.response), false)
		}
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusPayloadInput:
		m.payloadInput, cmd = m.payloadInput.Update(msg)
	case focusCommandList:
		m.commandList, cmd = m.commandList.Update(msg)
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusPayloadInput {
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
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusPayloadInput:
		m.payloadInput, cmd = m.payloadInput.Update(msg)
	case focusCommandList:
		m.commandList, cmd = m.commandList.Update(msg)
	}
	return m, cmd
}

func (m *monitorModel) cycleFocus(delta int) {
	m.focusedField = (m.focusedField + delta + focusCount) % focusCount
	if m.focusedField == focusPayloadInput {
		m.payloadInput.Focus()
	} else {
		m.payloadInput.Blur()
	}
}

func (m monitorModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.busy {
		m.addLogEntry("Command already in flight", true)
		return m, nil
	}
	item, ok := m.commandList.SelectedItem().(commandItem)
	if !ok {
		return m, nil
	}
	payload, err := commandPayload(m.payloadInput.Value(), item.payload)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("%s: %v", item.name, err), true)
		return m, nil
	}
	m.busy = true
	return m, sendCommand(m.link, item, payload)
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("PDSLINK MONITOR"))
	s.WriteString(" ")
	connStatus := fmt.Sprintf("%s | 0x%02X %s", m.connInfo, boardAddr, variantName(m.link.c.Framed()))
	if m.connectionLost {
		connStatus = warningStyle.Render("LINK LOST")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=send", connStatus)))
	s.WriteString("\n")
	if !m.stats.lastSuccess.IsZero() {
		s.WriteString(fmt.Sprintf(" %s %s",
			labelStyle.Render("Link Up:"),
			valueStyle.Render(formatUptime(time.Since(m.stats.started)))))
	}
	s.WriteString("\n\n")

	// Command list | command panel
	leftWidth := 30
	rightWidth := max(20, m.width-leftWidth-6)

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusCommandList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	listPanel := listStyle.Render(m.commandList.View())

	panelStyle := boxStyle.Width(rightWidth)
	if m.focusedField == focusPayloadInput {
		panelStyle = focusedBoxStyle.Width(rightWidth)
	}
	commandPanel := panelStyle.Render(m.renderCommandPanel(labelStyle, valueStyle, headerStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, listPanel, " ", commandPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderBoard(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderCommandPanel(labelStyle, valueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder

	item, ok := m.commandList.SelectedItem().(commandItem)
	if !ok {
		return headerStyle.Render("No command selected")
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Selected:"), item.name))
	if !item.ping {
		s.WriteString(fmt.Sprintf("%s %d bytes\n\n", labelStyle.Render("Payload:"), item.payload))
		s.WriteString(labelStyle.Render("Hex: "))
		s.WriteString(m.payloadInput.View())
	}
	s.WriteString("\n\n")

	switch {
	case m.busy:
		s.WriteString(headerStyle.Render("sending..."))
	case m.lastResponse != "":
		s.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Last:"), valueStyle.Render(m.lastResponse)))
	default:
		s.WriteString(headerStyle.Render("Enter sends the selected command"))
	}
	return s.String()
}

func (m monitorModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	failures := func(n uint64) string {
		if n > 0 {
			return errorStyle.Render(fmt.Sprintf("%d", n))
		}
		return valueStyle.Render("0")
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Polls:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.polls)),
		labelStyle.Render("Failed:"), failures(m.stats.pollFailures),
		labelStyle.Render("Commands:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.commands)),
		labelStyle.Render("Failed:"), failures(m.stats.cmdFailures),
		labelStyle.Render("Latency:"), valueStyle.Render(m.stats.lastLatency.Round(time.Microsecond).String()),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f poll/s", m.stats.pollRate())),
	)

	if m.sim != nil {
		snap := m.sim.board.Engine().Snapshot()
		c := snap.Counters
		content += fmt.Sprintf("\n%s %s  %s %s  %s %s  %s %s  %s %s",
			labelStyle.Render("Engine:"), valueStyle.Render(snap.Mode.String()),
			labelStyle.Render("Handled:"), valueStyle.Render(fmt.Sprintf("%d", c.Commands)),
			labelStyle.Render("Rejected:"), failures(c.Rejected),
			labelStyle.Render("Overruns:"), failures(c.Overruns),
			labelStyle.Render("Timeouts:"), failures(c.Timeouts),
		)
	}

	return boxStyle.Width(max(20, m.width-4)).Render(content)
}

func (m monitorModel) renderBoard(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(labelStyle.Render("BOARD"))
	content.WriteString(" | ")

	if !m.hasStatus {
		content.WriteString("No status yet")
		return boxStyle.Width(max(20, m.width-4)).Render(content.String())
	}

	statusStyle := valueStyle
	if m.status.Status != 0 {
		statusStyle = errorStyle
	}
	content.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s\n",
		labelStyle.Render("Status:"), statusStyle.Render(m.status.Status.String()),
		labelStyle.Render("Handled:"), valueStyle.Render(fmt.Sprintf("%d", m.status.Handled)),
		labelStyle.Render("Rev:"), valueStyle.Render(string(rune(m.status.Revision))),
	))
	for _, r := range m.readings {
		content.WriteString(fmt.Sprintf("%s %s  ",
			labelStyle.Render(fmt.Sprintf("CH%d:", r.Channel)),
			valueStyle.Render(r.Voltage.String())))
	}

	return boxStyle.Width(max(20, m.width-4)).Render(content.String())
}

func (m monitorModel) renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
		return boxStyle.Width(max(20, m.width-4)).Render(s.String())
	}

	start := max(0, len(m.eventLog)-8)
	for _, entry := range m.eventLog[start:] {
		icon, style := "i", warningStyle
		if entry.isError {
			icon, style = "x", errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(max(20, m.width-4)).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Board Access
//////////////////////////////////////////////////////////////

func pollBoard(link *boardLink, channels int) tea.Cmd {
	return func() tea.Msg {
		var res pollResultMsg
		start := time.Now()
		res.err = link.do(func(c *obc.Client) error {
			st, err := c.SystemStatus(false, 0)
			if err != nil {
				return err
			}
			res.status = st
			for ch := 0; ch < channels; ch++ {
				r, err := c.Converter(uint8(ch))
				if err != nil {
					return err
				}
				res.readings = append(res.readings, r)
			}
			return nil
		})
		res.latency = time.Since(start)
		return res
	}
}

func sendCommand(link *boardLink, item commandItem, payload []byte) tea.Cmd {
	return func() tea.Msg {
		res := commandResultMsg{name: item.name}
		res.err = link.do(func(c *obc.Client) error {
			if item.ping {
				if err := c.Ping(); err != nil {
					return err
				}
				res.response = "pong"
				return nil
			}
			resp, err := c.Query(item.id, payload)
			if err != nil {
				return err
			}
			res.response = describeResponse(item.id, resp, c.Commands())
			return nil
		})
		return res
	}
}

// commandPayload parses the hex field, padding an empty field with zeros
func commandPayload(field string, size int) ([]byte, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return make([]byte, size), nil
	}
	b, err := parseBytes(field)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("payload is %d bytes, want %d", len(b), size)
	}
	return b, nil
}

// describeResponse renders a response, decoding the ones with known layouts
func describeResponse(id byte, resp []byte, table *board.CommandTable) string {
	switch {
	case id == board.CmdTelecommandAck && len(resp) >= tinyproto.AckSize:
		if ack, err := tinyproto.ParseAck(resp); err == nil {
			return tinyproto.FormatAck(ack, table.Names())
		}
	case id == board.CmdConverterMonitor && len(resp) >= 3:
		return fmt.Sprintf("ch%d %s", resp[0], board.DecodeMillivolts(resp[1], resp[2]))
	}
	return tinyproto.FormatHex(resp)
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) applyPoll(res pollResultMsg) {
	m.stats.polls++
	if res.err != nil {
		m.stats.pollFailures++
		m.stats.failStreak++
		if m.stats.failStreak == linkLostAfter {
			m.connectionLost = true
			m.addLogEntry(fmt.Sprintf("Link lost: %v", res.err), true)
		} else if m.stats.failStreak < linkLostAfter {
			m.addLogEntry(fmt.Sprintf("Poll failed: %v", res.err), true)
		}
		return
	}

	if m.connectionLost {
		m.addLogEntry("Link restored", false)
	}
	if m.hasStatus && res.status.Status != m.status.Status {
		m.addLogEntry(fmt.Sprintf("Status %s -> %s", m.status.Status, res.status.Status), res.status.Status != 0)
	}
	m.connectionLost = false
	m.stats.failStreak = 0
	m.stats.lastLatency = res.latency
	m.stats.lastSuccess = time.Now()
	m.status = res.status
	m.hasStatus = true
	m.readings = res.readings
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// formatUptime formats a duration as "1 day, 2 hours, and 3 seconds"
func formatUptime(d time.Duration) string {
	units := []struct {
		name string
		size time.Duration
	}{
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
		{"second", time.Second},
	}

	var parts []string
	for _, u := range units {
		n := d / u.size
		d -= n * u.size
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
}
