// Package ui provides plain terminal output for pipes and CI, where the
// interactive view is unavailable.
// This file implements the status line printed while recording.
package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/session"
)

// StatusLine prints session progress to a writer, one line per change.
type StatusLine struct {
	mu   sync.Mutex
	w    io.Writer
	now  func() time.Time
	last statusKey
	seen bool
}

// statusKey is the part of a summary whose change warrants a new line.
type statusKey struct {
	id      string
	state   session.State
	points  int
	photos  int
	pending int
}

// NewStatusLine creates a StatusLine writing to w.
func NewStatusLine(w io.Writer) *StatusLine {
	return &StatusLine{w: w, now: time.Now}
}

// Update prints s if it differs from the last printed summary and reports
// whether a line was written.
func (p *StatusLine) Update(s session.Summary) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := statusKey{s.ID, s.State, s.Points, s.Photos, s.PendingPhotos}
	if p.seen && k == p.last {
		return false
	}
	p.last, p.seen = k, true
	fmt.Fprintln(p.w, FormatSummary(s, p.now()))
	return true
}

// FormatSummary renders s as a single plain line.
func FormatSummary(s session.Summary, now time.Time) string {
	line := fmt.Sprintf("[%s] points=%d photos=%d", s.State, s.Points, s.Photos)
	if s.PendingPhotos > 0 {
		line += fmt.Sprintf(" pending=%d", s.PendingPhotos)
	}
	if s.State == session.Recording && !s.StartedAt.IsZero() {
		line += " elapsed=" + FormatDuration(now.Sub(s.StartedAt))
	}
	if s.MediaBytes > 0 {
		line += fmt.Sprintf(" media=%dB", s.MediaBytes)
	}
	return line
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}
