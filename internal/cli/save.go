// save.go writes export archives to disk.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/export"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/log"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/session"
)

// saveArchive writes b to dir/name through a temp file and rename so a
// failed write never leaves a truncated archive behind.
func saveArchive(dir, name string, b *export.Bundle) (string, int64, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	n, err := b.WriteTo(tmp)
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return "", 0, fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", 0, fmt.Errorf("closing archive: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return "", 0, fmt.Errorf("saving archive: %w", err)
	}
	return path, n, nil
}

// exportSession waits for pending photos, builds the bundle from the
// controller's stopped session and saves it.
func exportSession(ctx context.Context, c *session.Controller, events log.EventLogger, dir, name string) (string, error) {
	start := time.Now()
	if err := c.WaitPhotos(ctx); err != nil {
		return "", fmt.Errorf("waiting for photos: %w", err)
	}

	s := c.Snapshot()
	b, err := export.Build(s)
	if err != nil {
		_ = events.Append(log.LogEvent{Event: log.EventExportFailed, SessionID: s.ID, Error: err.Error()})
		return "", err
	}

	path, n, err := saveArchive(dir, name, b)
	if err != nil {
		_ = events.Append(log.LogEvent{Event: log.EventExportFailed, SessionID: s.ID, Error: err.Error()})
		return "", err
	}

	_ = events.Append(log.LogEvent{
		Event:      log.EventExportWritten,
		SessionID:  s.ID,
		Path:       path,
		Bytes:      int(n),
		Points:     len(s.TrackPoints),
		Photos:     len(s.Photos),
		DurationMs: time.Since(start).Milliseconds(),
	})
	return path, nil
}
