package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/log"
)

func TestConfigYAMLRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Capture.Device = "/dev/video2"
	cfg.Location.TimeoutMs = 2500

	if err := WriteConfig(tmpDir, cfg); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	loaded, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}

	if loaded.Capture.Device != "/dev/video2" {
		t.Errorf("Capture.Device: got %q, want %q", loaded.Capture.Device, "/dev/video2")
	}
	if loaded.Location.Timeout() != 2500*time.Millisecond {
		t.Errorf("Location.Timeout(): got %v, want 2.5s", loaded.Location.Timeout())
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefaultConfigMatchesFieldRecorder(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Location.CheckTimeout() != 10*time.Second {
		t.Errorf("CheckTimeout: got %v, want 10s", cfg.Location.CheckTimeout())
	}
	if cfg.Location.Timeout() != 5*time.Second {
		t.Errorf("Timeout: got %v, want 5s", cfg.Location.Timeout())
	}
	if cfg.Location.MaxStaleness() != 0 {
		t.Errorf("MaxStaleness: got %v, want 0", cfg.Location.MaxStaleness())
	}
	if cfg.Export.ArchiveName != "pothole_report.zip" {
		t.Errorf("ArchiveName: got %q, want pothole_report.zip", cfg.Export.ArchiveName)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Annotate.JPEGQuality = 0
	if err := Validate(cfg); err == nil {
		t.Error("Validate should reject jpeg_quality 0")
	}

	cfg = DefaultConfig()
	cfg.Annotate.Timezone = "Mars/Olympus_Mons"
	if err := Validate(cfg); err == nil {
		t.Error("Validate should reject an unknown timezone")
	}

	cfg = DefaultConfig()
	cfg.Capture.Device = ""
	if err := Validate(cfg); err == nil {
		t.Error("Validate should reject an empty capture device")
	}
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	partial := `version: 1
capture:
  device: /dev/video1
`
	configPath := filepath.Join(tmpDir, ".potholerec")
	if err := os.MkdirAll(configPath, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configPath, "config.yaml"), []byte(partial), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	if cfg.Capture.Device != "/dev/video1" {
		t.Errorf("Capture.Device: got %q, want /dev/video1", cfg.Capture.Device)
	}
	if cfg.Annotate.Timezone != "Asia/Kolkata" {
		t.Errorf("Annotate.Timezone: got %q, want default Asia/Kolkata", cfg.Annotate.Timezone)
	}
	// yaml.v3 decodes into nested structs field by field, so untouched
	// capture fields survive too.
	if cfg.Capture.Width != 1280 {
		t.Errorf("Capture.Width: got %d, want default 1280", cfg.Capture.Width)
	}
}

func TestReadConfigMissing(t *testing.T) {
	if _, err := ReadConfig(t.TempDir()); err == nil {
		t.Error("ReadConfig should fail when config.yaml is missing")
	}
}

func TestConfigSharesLogStateDir(t *testing.T) {
	dir := t.TempDir()
	if err := WriteConfig(dir, DefaultConfig()); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}
	logger, err := log.NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	want := filepath.Join(dir, log.StateDir, "config.yaml")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("config not at %s: %v", want, err)
	}
	if got := filepath.Dir(logger.Path()); got != filepath.Dir(want) {
		t.Errorf("log dir = %s, want %s", got, filepath.Dir(want))
	}
}
