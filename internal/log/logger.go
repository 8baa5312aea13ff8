// Package log provides structured event logging.
// This file appends JSON events to log.jsonl.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventSessionStarted     = "session_started"
	EventSessionStartFailed = "session_start_failed"
	EventSessionStopped     = "session_stopped"
	EventSessionReset       = "session_reset"
	EventPhotoCaptured      = "photo_captured"
	EventFixUnavailable     = "fix_unavailable"
	EventExportWritten      = "export_written"
	EventExportFailed       = "export_failed"
)

// StateDir is the per-project directory holding config and the event log.
const StateDir = ".potholerec"

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time       time.Time              `json:"time"`
	Event      string                 `json:"event"`
	SessionID  string                 `json:"session,omitempty"`
	Capability string                 `json:"capability,omitempty"`
	Lat        *float64               `json:"lat,omitempty"`
	Lon        *float64               `json:"lon,omitempty"`
	Photo      int                    `json:"photo,omitempty"`
	Points     int                    `json:"points,omitempty"`
	Photos     int                    `json:"photos,omitempty"`
	Bytes      int                    `json:"bytes,omitempty"`
	Path       string                 `json:"path,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// EventLogger is the sink the recorder components write events to.
type EventLogger interface {
	Append(event LogEvent) error
}

type discard struct{}

func (discard) Append(LogEvent) error { return nil }

// Discard is an EventLogger that drops every event.
var Discard EventLogger = discard{}

// Logger writes append-only JSONL events to a log file.
type Logger struct {
	path string
	mu   sync.Mutex
}

// NewLogger creates a Logger that writes to .potholerec/log.jsonl inside dir.
// Creates the .potholerec/ directory if it does not already exist.
// Does not truncate an existing log file.
func NewLogger(dir string) (*Logger, error) {
	stateDir := filepath.Join(dir, StateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s directory: %w", StateDir, err)
	}

	return &Logger{
		path: filepath.Join(stateDir, "log.jsonl"),
	}, nil
}

// Path returns the log file location.
func (l *Logger) Path() string {
	return l.path
}

// Append writes a single LogEvent as one JSON line to the log file.
// If event.Time is the zero value, it is automatically set to time.Now().UTC().
// Thread-safe via mutex.
func (l *Logger) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write log event: %w", err)
	}

	return nil
}

// ReadAll reads and parses all events from the log file.
// Returns an empty slice (not an error) if the file does not exist.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []LogEvent{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var events []LogEvent
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse log line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	return events, nil
}

// Memory is an in-memory EventLogger. The recorder view tees the file log
// into one to show recent events; tests use it to inspect what was logged.
type Memory struct {
	// Limit caps how many events are kept, oldest dropped first. Zero keeps
	// everything.
	Limit int

	mu     sync.Mutex
	events []LogEvent
}

// Append records event in memory.
func (m *Memory) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	if m.Limit > 0 && len(m.events) > m.Limit {
		m.events = append(m.events[:0:0], m.events[len(m.events)-m.Limit:]...)
	}
	return nil
}

// Last returns the most recent event, if any.
func (m *Memory) Last() (LogEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return LogEvent{}, false
	}
	return m.events[len(m.events)-1], true
}

// Events returns a copy of everything appended so far.
func (m *Memory) Events() []LogEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LogEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Tee fans events out to several loggers. The first error wins but every
// logger still receives the event.
func Tee(loggers ...EventLogger) EventLogger {
	return tee(loggers)
}

type tee []EventLogger

func (t tee) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	var first error
	for _, l := range t {
		if err := l.Append(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
