// ABOUTME: Bubbletea model for player TUI
// ABOUTME: Shows the play prompt, playback state, and engine statistics
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	playingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")).Width(52)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Width(52)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Width(45)
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string

	// Playback
	state   string
	enabled bool
	volume  int
	muted   bool

	// Stats
	received   int64
	played     int64
	failed     int64
	dropped    int64
	truncated  int64
	queueDepth int
	queuedMs   int64

	lastError string
	controls  *Controls

	// Dimensions
	width  int
	height int
}

// StatusMsg updates TUI state. Pointer fields are only applied when set.
type StatusMsg struct {
	Connected  *bool
	ServerName string
	State      string
	Enabled    *bool
	Volume     *int
	Muted      *bool
	Error      string
	Stats      *StatsMsg
}

// StatsMsg mirrors the engine statistics
type StatsMsg struct {
	Received   int64
	Played     int64
	Failed     int64
	Dropped    int64
	Truncated  int64
	QueueDepth int
	QueuedMs   int64
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderPrompt())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderStats())
	b.WriteString(m.renderHelp())
	return b.String()
}

// Prompt is the single line standing in for the play widget
func (m Model) Prompt() string {
	switch {
	case m.state == "draining":
		return "Audio is playing..."
	case m.enabled:
		return "Audio enabled..."
	default:
		return "[p] Play"
	}
}

func (m Model) renderHeader() string {
	connStatus := "Waiting for producer"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.serverName)
	}

	return fmt.Sprintf(`┌─ PCM Player ─────────────────────────────────────────┐
│ Status: %-45s │
│ Engine: %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(connStatus, 45), m.state)
}

func (m Model) renderPrompt() string {
	style := promptStyle
	if m.state == "draining" {
		style = playingStyle
	}
	return "│ " + style.Render(m.Prompt()) + " │\n"
}

func (m Model) renderControls() string {
	muteText := ""
	if m.muted {
		muteText = " (muted)"
	}

	return fmt.Sprintf("│                                                      │\n"+
		"│ Volume: [%s] %3d%%%-8s%-17s │\n"+
		"│ Queue:  %dms (%d buffers)%-22s │\n",
		renderBar(m.volume, 100, 10), m.volume, muteText, "",
		m.queuedMs, m.queueDepth, "")
}

func (m Model) renderStats() string {
	s := fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ RX: %d  Played: %d  Failed: %d  Dropped: %d  Odd: %d
`, m.received, m.played, m.failed, m.dropped, m.truncated)
	if m.lastError != "" {
		s += "│ Error: " + errorStyle.Render(truncate(m.lastError, 45)) + " │\n"
	}
	return s
}

func (m Model) renderHelp() string {
	return `│ p:Play  +/-:Volume  m:Mute  q:Quit                   │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "p":
		if m.controls != nil {
			select {
			case m.controls.Play <- struct{}{}:
			default:
			}
		}
	case "+", "=", "up":
		m.volume = clampVolume(m.volume + 5)
		m.sendVolume()
	case "-", "down":
		m.volume = clampVolume(m.volume - 5)
		m.sendVolume()
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	}

	return m, nil
}

func (m Model) sendVolume() {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Enabled != nil {
		m.enabled = *msg.Enabled
	}
	if msg.Volume != nil {
		m.volume = clampVolume(*msg.Volume)
	}
	if msg.Muted != nil {
		m.muted = *msg.Muted
	}
	if msg.Error != "" {
		m.lastError = msg.Error
	}
	if msg.Stats != nil {
		m.received = msg.Stats.Received
		m.played = msg.Stats.Played
		m.failed = msg.Stats.Failed
		m.dropped = msg.Stats.Dropped
		m.truncated = msg.Stats.Truncated
		m.queueDepth = msg.Stats.QueueDepth
		m.queuedMs = msg.Stats.QueuedMs
	}
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
