// log.go implements the "potholerec log" command.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/log"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the recorder event log",
	Long: `Print events from .potholerec/log.jsonl: session starts and stops,
photos, GPS fix failures and exports.`,
	RunE: runLog,
}

var (
	logSession string
	logTail    int
)

func init() {
	logCmd.Flags().StringVar(&logSession, "session", "", "Only show events for this session id (prefix match)")
	logCmd.Flags().IntVar(&logTail, "tail", 0, "Only show the last N events")
}

func runLog(cmd *cobra.Command, args []string) error {
	logger, err := log.NewLogger(configDir)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	events, err := logger.ReadAll()
	if err != nil {
		return err
	}
	events = filterEvents(events, logSession, logTail)
	if len(events) == 0 {
		fmt.Println("No events recorded yet.")
		return nil
	}
	printEvents(os.Stdout, events)
	return nil
}

func filterEvents(events []log.LogEvent, session string, tail int) []log.LogEvent {
	var out []log.LogEvent
	for _, ev := range events {
		if session != "" && !strings.HasPrefix(ev.SessionID, session) {
			continue
		}
		out = append(out, ev)
	}
	if tail > 0 && len(out) > tail {
		out = out[len(out)-tail:]
	}
	return out
}

func printEvents(w io.Writer, events []log.LogEvent) {
	for _, ev := range events {
		id := ev.SessionID
		if len(id) > 8 {
			id = id[:8]
		}
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%s  %-20s  %-8s  %s\n", ev.Time.Local().Format(time.DateTime), ev.Event, id, eventDetail(ev))
	}
}

// eventDetail renders the fields relevant to each event type.
func eventDetail(ev log.LogEvent) string {
	var parts []string
	if ev.Capability != "" {
		parts = append(parts, "capability="+ev.Capability)
	}
	if ev.Photo > 0 {
		parts = append(parts, fmt.Sprintf("photo=%d", ev.Photo))
	}
	if ev.Lat != nil && ev.Lon != nil {
		parts = append(parts, fmt.Sprintf("at=%.6f,%.6f", *ev.Lat, *ev.Lon))
	}
	if ev.Points > 0 {
		parts = append(parts, fmt.Sprintf("points=%d", ev.Points))
	}
	if ev.Photos > 0 {
		parts = append(parts, fmt.Sprintf("photos=%d", ev.Photos))
	}
	if ev.Bytes > 0 {
		parts = append(parts, fmt.Sprintf("bytes=%d", ev.Bytes))
	}
	if ev.DurationMs > 0 {
		parts = append(parts, fmt.Sprintf("took=%dms", ev.DurationMs))
	}
	if ev.Path != "" {
		parts = append(parts, "path="+ev.Path)
	}
	if ev.Error != "" {
		parts = append(parts, "error="+ev.Error)
	}
	return strings.Join(parts, " ")
}
