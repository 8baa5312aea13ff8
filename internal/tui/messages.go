package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// refreshInterval is how often the view polls the session summary.
const refreshInterval = 250 * time.Millisecond

// TickMsg asks the model to refresh its summary.
type TickMsg time.Time

// ActionDoneMsg reports the outcome of a recorder action.
type ActionDoneMsg struct {
	Action string // "start", "stop", "photo", "export", "reset"
	Note   string // success detail, e.g. the saved path
	Err    error
}

// QuitAfterStopMsg is sent when quitting had to stop a recording first.
type QuitAfterStopMsg struct {
	Err error
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
