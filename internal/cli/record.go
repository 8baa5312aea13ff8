// record.go implements the "potholerec record" command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/annotate"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/capture"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/capture/gstreamer"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/config"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/geo"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/geo/nmea"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/log"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/session"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/tui"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record video, GPS track and photos",
	Long: `Start an interactive recorder on a terminal: space starts and stops,
p takes a photo, e exports, r resets, q quits.

Without a terminal, recording starts immediately; type "p" + enter for a
photo and "s" + enter (or close stdin) to stop and export.`,
	RunE: runRecord,
}

// recentEvents is how many events the interactive view keeps in memory.
const recentEvents = 32

var (
	recordOut    string
	recordGPS    string
	recordCamera string
	recordAudio  bool
)

func init() {
	recordCmd.Flags().StringVar(&recordOut, "out", "", "Directory for the exported archive (overrides export.output_dir)")
	recordCmd.Flags().StringVar(&recordGPS, "gps", "", "NMEA device or log file (overrides location.device)")
	recordCmd.Flags().StringVar(&recordCamera, "camera", "", "V4L2 camera device (overrides capture.device)")
	recordCmd.Flags().BoolVar(&recordAudio, "audio", false, "Record audio alongside video")
}

func runRecord(cmd *cobra.Command, args []string) error {
	dir := configDir

	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	applyRecordFlags(cfg, cmd)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	interactive := tui.IsTTY()
	closeDiag, err := setupDiagnostics(dir, interactive)
	if err != nil {
		return err
	}
	defer closeDiag()

	logger, err := log.NewLogger(dir)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	recent := &log.Memory{Limit: recentEvents}
	events := log.Tee(logger, recent)

	ctrl, err := newController(cfg, events, nmea.New(cfg.Location.Device), gstreamer.New())
	if err != nil {
		return err
	}
	defer ctrl.Close()

	exported := ""
	exportFn := func(ctx context.Context) (string, error) {
		path, err := exportSession(ctx, ctrl, events, cfg.Export.OutputDir, cfg.Export.ArchiveName)
		if err == nil {
			exported = ctrl.Summary().ID
		}
		return path, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !interactive {
		return tui.NewFallbackRunner(ctrl, exportFn, os.Stdout).Run(ctx, os.Stdin)
	}

	if err := tui.Run(tui.NewModel(ctrl, exportFn).WithEvents(recent)); err != nil {
		return err
	}
	return finishSession(ctx, ctrl, exportFn, exported, os.Stdout)
}

// finishSession stops a recording left running at quit and exports a
// stopped session that was not exported yet.
func finishSession(ctx context.Context, ctrl *session.Controller, exportFn tui.ExportFunc, exportedID string, out io.Writer) error {
	var stopErr error
	if ctrl.State() == session.Recording {
		if err := ctrl.Stop(ctx); err != nil {
			stopErr = fmt.Errorf("stopping recording: %w", err)
			if ctrl.State() != session.Stopped {
				return stopErr
			}
		}
	}
	if ctrl.State() != session.Stopped || ctrl.Summary().ID == exportedID {
		return stopErr
	}
	path, err := exportFn(ctx)
	if err != nil {
		return errors.Join(stopErr, fmt.Errorf("exporting: %w", err))
	}
	fmt.Fprintf(out, "Saved %s\n", path)
	return stopErr
}

// loadConfig reads the project config, falling back to defaults when the
// project was never initialized.
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.ReadConfig(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func applyRecordFlags(cfg *config.Config, cmd *cobra.Command) {
	if recordOut != "" {
		cfg.Export.OutputDir = recordOut
	}
	if recordGPS != "" {
		cfg.Location.Device = recordGPS
	}
	if recordCamera != "" {
		cfg.Capture.Device = recordCamera
	}
	if cmd.Flags().Changed("audio") {
		cfg.Capture.Audio = recordAudio
	}
}

// setupDiagnostics routes slog output. The interactive view owns the
// terminal, so diagnostics go to .potholerec/debug.log instead of stderr.
func setupDiagnostics(dir string, interactive bool) (func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if !interactive {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return func() {}, nil
	}

	stateDir := filepath.Join(dir, log.StateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s directory: %w", log.StateDir, err)
	}
	f, err := os.OpenFile(filepath.Join(stateDir, "debug.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, opts)))
	return func() { _ = f.Close() }, nil
}

// newController wires the configured capabilities into a session controller.
func newController(cfg *config.Config, events log.EventLogger, provider geo.Provider, device capture.Device) (*session.Controller, error) {
	loc, err := time.LoadLocation(cfg.Annotate.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Annotate.Timezone, err)
	}
	ann, err := annotate.New(annotate.Options{
		Location:    loc,
		ZoneLabel:   cfg.Annotate.ZoneLabel,
		FontSize:    cfg.Annotate.FontSize,
		JPEGQuality: cfg.Annotate.JPEGQuality,
	})
	if err != nil {
		return nil, err
	}
	return session.New(session.Deps{
		Provider:  provider,
		Device:    device,
		Annotator: ann,
		Events:    events,
	}, sessionOptions(cfg)), nil
}

// sessionOptions maps the config onto capability request options.
func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		Constraints: capture.Constraints{
			Device: cfg.Capture.Device,
			Width:  cfg.Capture.Width,
			Height: cfg.Capture.Height,
			FPS:    cfg.Capture.FPS,
			Audio:  cfg.Capture.Audio,
		},
		Watch: geo.Options{
			HighAccuracy: cfg.Location.HighAccuracy,
			MaxStaleness: cfg.Location.MaxStaleness(),
			Timeout:      cfg.Location.Timeout(),
		},
		AccessCheck: geo.Options{
			HighAccuracy: cfg.Location.HighAccuracy,
			Timeout:      cfg.Location.CheckTimeout(),
		},
	}
}
