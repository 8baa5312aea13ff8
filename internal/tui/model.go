package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/log"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/session"
)

// Model is the Bubble Tea model for the recorder view.
type Model struct {
	rec    Recorder
	export ExportFunc
	ctx    context.Context
	keys   KeyMap

	spinner spinner.Model
	summary session.Summary
	now     func() time.Time

	events EventSource
	recent string // latest event line, empty until one is logged

	busy     string // action in flight, empty when none
	status   string
	err      error
	quitting bool
}

// NewModel creates the recorder view over rec.
func NewModel(rec Recorder, export ExportFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = TitleStyle

	return Model{
		rec:     rec,
		export:  export,
		ctx:     context.Background(),
		keys:    DefaultKeyMap,
		spinner: s,
		summary: rec.Summary(),
		now:     time.Now,
	}
}

// WithEvents shows the latest event from src under the session summary.
func (m Model) WithEvents(src EventSource) Model {
	m.events = src
	m.recent = m.latestEvent()
	return m
}

func (m Model) latestEvent() string {
	if m.events == nil {
		return ""
	}
	ev, ok := m.events.Last()
	if !ok {
		return ""
	}
	return describeEvent(ev)
}

// describeEvent renders ev as "15:04:05 event detail".
func describeEvent(ev log.LogEvent) string {
	line := ev.Time.Local().Format(time.TimeOnly) + " " + ev.Event
	switch {
	case ev.Error != "":
		line += ": " + ev.Error
	case ev.Path != "":
		line += " " + ev.Path
	case ev.Photo > 0 && ev.Lat != nil && ev.Lon != nil:
		line += fmt.Sprintf(" #%d at %.6f,%.6f", ev.Photo, *ev.Lat, *ev.Lon)
	case ev.Photo > 0:
		line += fmt.Sprintf(" #%d", ev.Photo)
	}
	return line
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		m.summary = m.rec.Summary()
		m.recent = m.latestEvent()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ActionDoneMsg:
		m.busy = ""
		m.summary = m.rec.Summary()
		m.recent = m.latestEvent()
		if msg.Err != nil {
			m.err = msg.Err
			m.status = ""
		} else {
			m.err = nil
			m.status = msg.Note
		}
		return m, nil

	case QuitAfterStopMsg:
		m.busy = ""
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == KeyCtrlC {
		m.quitting = true
		return m, tea.Quit
	}
	if m.busy != "" {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.summary.State == session.Recording {
			m.busy = "stopping"
			return m, m.stopThenQuit()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		if m.summary.State == session.Recording {
			m.busy = "stopping"
			return m, m.run("stop", func(ctx context.Context) (string, error) {
				return "recording stopped", m.rec.Stop(ctx)
			})
		}
		m.busy = "starting"
		return m, m.run("start", func(ctx context.Context) (string, error) {
			return "recording", m.rec.Start(ctx)
		})

	case key.Matches(msg, m.keys.Photo):
		m.busy = "capturing"
		return m, m.run("photo", func(ctx context.Context) (string, error) {
			n, err := m.rec.CapturePhoto(ctx)
			return fmt.Sprintf("photo %d captured", n), err
		})

	case key.Matches(msg, m.keys.Export):
		m.busy = "exporting"
		return m, m.run("export", func(ctx context.Context) (string, error) {
			path, err := m.export(ctx)
			return "saved " + path, err
		})

	case key.Matches(msg, m.keys.Reset):
		m.busy = "resetting"
		return m, m.run("reset", func(context.Context) (string, error) {
			return "session cleared", m.rec.Reset()
		})
	}
	return m, nil
}

func (m Model) run(action string, fn func(context.Context) (string, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		note, err := fn(ctx)
		return ActionDoneMsg{Action: action, Note: note, Err: err}
	}
}

func (m Model) stopThenQuit() tea.Cmd {
	ctx, rec := m.ctx, m.rec
	return func() tea.Msg {
		return QuitAfterStopMsg{Err: rec.Stop(ctx)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting && m.busy == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Pothole Recorder"))
	b.WriteString("\n\n")

	s := m.summary
	fmt.Fprintf(&b, "%s %s", stateIcon(s.State.String()), s.State)
	if s.State == session.Recording && !s.StartedAt.IsZero() {
		fmt.Fprintf(&b, "  %s", formatElapsed(m.now().Sub(s.StartedAt)))
	}
	b.WriteString("\n")
	if s.ID != "" {
		b.WriteString(DimStyle.Render("session " + shortID(s.ID)))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "track points: %d\n", s.Points)
	fmt.Fprintf(&b, "photos:       %d", s.Photos)
	if s.PendingPhotos > 0 {
		b.WriteString(WarningStyle.Render(fmt.Sprintf(" (+%d pending)", s.PendingPhotos)))
	}
	b.WriteString("\n")
	if s.MediaBytes > 0 {
		fmt.Fprintf(&b, "media:        %s\n", formatBytes(s.MediaBytes))
	}
	if m.recent != "" {
		b.WriteString(DimStyle.Render("last: " + m.recent))
		b.WriteString("\n")
	}

	body := BoxStyle.Render(b.String())

	var line string
	switch {
	case m.busy != "":
		line = m.spinner.View() + " " + m.busy + "..."
	case m.err != nil:
		line = ErrorStyle.Render("error: " + m.err.Error())
	case m.status != "":
		line = SuccessStyle.Render(m.status)
	}

	return body + "\n" + line + "\n" + StatusBarStyle.Render(m.helpLine()) + "\n"
}

func (m Model) helpLine() string {
	bindings := m.keys.ShortHelp()
	parts := make([]string, 0, len(bindings))
	for _, k := range bindings {
		h := k.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, sec)
	}
	return fmt.Sprintf("%02d:%02d", mnt, sec)
}

func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMG"[exp])
}
