// Package config handles reading and writing .potholerec/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/log"
)

// Config is the top-level structure for .potholerec/config.yaml.
type Config struct {
	Version  int            `yaml:"version" validate:"gte=1"`
	Location LocationConfig `yaml:"location"`
	Capture  CaptureConfig  `yaml:"capture"`
	Annotate AnnotateConfig `yaml:"annotate"`
	Export   ExportConfig   `yaml:"export"`
}

// LocationConfig controls the GPS receiver and fix options.
type LocationConfig struct {
	Device         string `yaml:"device" validate:"required"` // NMEA source, e.g. /dev/ttyACM0
	HighAccuracy   bool   `yaml:"high_accuracy"`
	TimeoutMs      int    `yaml:"timeout_ms" validate:"gt=0"`       // continuous + one-shot
	CheckTimeoutMs int    `yaml:"check_timeout_ms" validate:"gt=0"` // permission check at start
	MaxStalenessMs int    `yaml:"max_staleness_ms" validate:"gte=0"`
}

// CaptureConfig selects the camera and the recording format.
type CaptureConfig struct {
	Device string `yaml:"device" validate:"required"` // V4L2 node, e.g. /dev/video0
	Width  int    `yaml:"width" validate:"gt=0"`
	Height int    `yaml:"height" validate:"gt=0"`
	FPS    int    `yaml:"fps" validate:"gt=0,lte=60"`
	Audio  bool   `yaml:"audio"`
}

// AnnotateConfig controls the caption burned onto photos.
type AnnotateConfig struct {
	Timezone    string  `yaml:"timezone" validate:"required"`
	ZoneLabel   string  `yaml:"zone_label" validate:"required"`
	FontSize    float64 `yaml:"font_size" validate:"gt=0"`
	JPEGQuality int     `yaml:"jpeg_quality" validate:"gte=1,lte=100"`
}

// ExportConfig controls where archives are written.
type ExportConfig struct {
	OutputDir   string `yaml:"output_dir"`
	ArchiveName string `yaml:"archive_name" validate:"required"`
}

const configFile = "config.yaml"

// ReadConfig reads .potholerec/config.yaml from the given project directory.
// dir is the project root (not .potholerec/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, log.StateDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Start from defaults so older files missing a section stay usable.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// WriteConfig writes cfg to .potholerec/config.yaml in the given project directory.
// Creates the .potholerec/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, log.StateDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks field constraints and that the configured timezone exists.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Annotate.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", cfg.Annotate.Timezone, err)
	}
	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Location: LocationConfig{
			Device:         "/dev/ttyACM0",
			HighAccuracy:   true,
			TimeoutMs:      5000,
			CheckTimeoutMs: 10000,
			MaxStalenessMs: 0,
		},
		Capture: CaptureConfig{
			Device: "/dev/video0",
			Width:  1280,
			Height: 720,
			FPS:    30,
			Audio:  false,
		},
		Annotate: AnnotateConfig{
			Timezone:    "Asia/Kolkata",
			ZoneLabel:   "IST",
			FontSize:    20,
			JPEGQuality: 92,
		},
		Export: ExportConfig{
			OutputDir:   ".",
			ArchiveName: "pothole_report.zip",
		},
	}
}

// Timeout returns the continuous/one-shot fix timeout as a duration.
func (c LocationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CheckTimeout returns the start-time permission check timeout.
func (c LocationConfig) CheckTimeout() time.Duration {
	return time.Duration(c.CheckTimeoutMs) * time.Millisecond
}

// MaxStaleness returns the oldest acceptable cached fix age.
func (c LocationConfig) MaxStaleness() time.Duration {
	return time.Duration(c.MaxStalenessMs) * time.Millisecond
}
