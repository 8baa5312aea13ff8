package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggerAppendReadAll(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	lat := 12.9
	if err := logger.Append(LogEvent{Event: EventSessionStarted, SessionID: "s1"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := logger.Append(LogEvent{Event: EventPhotoCaptured, SessionID: "s1", Photo: 1, Lat: &lat}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Event != EventSessionStarted {
		t.Errorf("events[0].Event = %q, want %q", events[0].Event, EventSessionStarted)
	}
	if events[0].Time.IsZero() {
		t.Error("events[0].Time should be set automatically")
	}
	if events[1].Lat == nil || *events[1].Lat != 12.9 {
		t.Errorf("events[1].Lat = %v, want 12.9", events[1].Lat)
	}
	if events[1].Lon != nil {
		t.Errorf("events[1].Lon = %v, want nil", *events[1].Lon)
	}
}

func TestLoggerReadAllMissingFile(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len(events) = %d, want 0", len(events))
	}
}

func TestLoggerReadAllMalformedLine(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	path := filepath.Join(dir, StateDir, "log.jsonl")
	if err := os.WriteFile(path, []byte("{\"event\":\"x\"}\nnot json\n"), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if _, err := logger.ReadAll(); err == nil {
		t.Error("ReadAll should fail on a malformed line")
	}
}

type failing struct{}

func (failing) Append(LogEvent) error { return errors.New("disk full") }

func TestTeeDeliversToAll(t *testing.T) {
	var a, b Memory
	err := Tee(&a, failing{}, &b).Append(LogEvent{Event: EventSessionReset})
	if err == nil || err.Error() != "disk full" {
		t.Errorf("Tee error = %v, want disk full", err)
	}
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("events delivered = %d/%d, want 1/1", len(a.Events()), len(b.Events()))
	}
}

func TestMemoryLimitKeepsNewest(t *testing.T) {
	m := &Memory{Limit: 2}
	if _, ok := m.Last(); ok {
		t.Error("Last() on empty Memory reported an event")
	}
	for i := 1; i <= 3; i++ {
		_ = m.Append(LogEvent{Event: EventPhotoCaptured, Photo: i})
	}
	events := m.Events()
	if len(events) != 2 || events[0].Photo != 2 || events[1].Photo != 3 {
		t.Errorf("events = %+v, want photos 2 and 3", events)
	}
	last, ok := m.Last()
	if !ok || last.Photo != 3 {
		t.Errorf("Last() = %+v, %v, want photo 3", last, ok)
	}
	if last.Time.IsZero() {
		t.Error("Append did not stamp the event time")
	}
}
