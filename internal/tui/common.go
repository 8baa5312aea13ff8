// Package tui implements the interactive recorder view using Bubble Tea,
// plus a line-command fallback for non-terminal use.
package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/log"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/session"
)

// Common key binding constants.
const (
	KeyCtrlC = "ctrl+c"
	KeySpace = " "
)

// Recorder is the session surface the views drive.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	CapturePhoto(ctx context.Context) (int, error)
	Reset() error
	Summary() session.Summary
}

// EventSource exposes the most recent logged event.
type EventSource interface {
	Last() (log.LogEvent, bool)
}

// ExportFunc builds and saves the archive for the stopped session and
// returns where it was written.
type ExportFunc func(ctx context.Context) (string, error)

// IsTTY returns true if stdout is connected to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Run starts the TUI program with the given model in alternate screen mode.
func Run(m tea.Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
