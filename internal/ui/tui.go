// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels it reports key presses on
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg carries a volume or mute change requested from the keyboard
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// Controls holds channels the TUI uses to reach the player
type Controls struct {
	Play    chan struct{}
	Changes chan VolumeChangeMsg
	Quit    chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Play:    make(chan struct{}, 1),
		Changes: make(chan VolumeChangeMsg, 10),
		Quit:    make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(ctrl *Controls, volume int) Model {
	return Model{
		volume:   volume,
		state:    "uninitialized",
		controls: ctrl,
	}
}

// Run creates the TUI program; the caller starts it with Run on the result
func Run(ctrl *Controls, volume int) *tea.Program {
	return tea.NewProgram(NewModel(ctrl, volume), tea.WithAltScreen())
}
