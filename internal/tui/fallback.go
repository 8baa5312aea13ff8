package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/session"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/ui"
)

// FallbackRunner drives a recording from line commands when stdout is not
// a terminal. Recording starts at once; "p" takes a photo and "s", "q" or
// end of input stops and exports.
type FallbackRunner struct {
	rec      Recorder
	export   ExportFunc
	out      io.Writer
	status   *ui.StatusLine
	interval time.Duration
}

// NewFallbackRunner creates a new FallbackRunner.
func NewFallbackRunner(rec Recorder, export ExportFunc, out io.Writer) *FallbackRunner {
	return &FallbackRunner{
		rec:      rec,
		export:   export,
		out:      out,
		status:   ui.NewStatusLine(out),
		interval: time.Second,
	}
}

// Run records until a stop command, end of in, or cancellation of ctx, then
// stops and exports. Cancellation still finalizes the recording.
func (f *FallbackRunner) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(f.out, "Running in non-interactive mode...")

	if err := f.rec.Start(ctx); err != nil {
		return err
	}
	f.status.Update(f.rec.Summary())

	done := make(chan struct{})
	defer close(done)
	lines := readLines(in, done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return f.finish(context.WithoutCancel(ctx))

		case <-ticker.C:
			f.status.Update(f.rec.Summary())

		case line, ok := <-lines:
			if !ok {
				return f.finish(ctx)
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "":
			case "p", "photo":
				n, err := f.rec.CapturePhoto(ctx)
				if err != nil {
					fmt.Fprintf(f.out, "photo failed: %v\n", err)
					continue
				}
				fmt.Fprintf(f.out, "photo %d captured\n", n)
			case "s", "stop", "q", "quit":
				return f.finish(ctx)
			default:
				fmt.Fprintf(f.out, "unknown command %q (p: photo, s: stop)\n", line)
			}
		}
	}
}

func (f *FallbackRunner) finish(ctx context.Context) error {
	if err := f.rec.Stop(ctx); err != nil {
		if f.rec.Summary().State != session.Stopped {
			return fmt.Errorf("stopping recording: %w", err)
		}
		// Partial media is kept; export what was captured.
		fmt.Fprintf(f.out, "stop: %v\n", err)
	}
	path, err := f.export(ctx)
	f.status.Update(f.rec.Summary())
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	fmt.Fprintf(f.out, "Saved %s\n", path)
	return nil
}

func readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}
