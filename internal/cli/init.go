// init.go implements the "potholerec init" command.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/config"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/log"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .potholerec/config.yaml",
	Long: `Create the .potholerec/ directory with a default configuration for the
camera, GPS receiver, caption and export settings. Edit the file to point
at your devices before running "potholerec record".`,
	RunE: runInit,
}

var (
	initCamera string
	initGPS    string
)

func init() {
	initCmd.Flags().StringVar(&initCamera, "camera", "", "V4L2 camera device to store in the config")
	initCmd.Flags().StringVar(&initGPS, "gps", "", "NMEA device or log file to store in the config")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := configDir

	stateDir := filepath.Join(dir, log.StateDir)
	if info, statErr := os.Stat(stateDir); statErr == nil && info.IsDir() {
		if !confirm(os.Stdin, os.Stdout, fmt.Sprintf("Warning: %s/ directory already exists.\nReinitialize? [y/N]: ", log.StateDir)) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if initCamera != "" {
		cfg.Capture.Device = initCamera
	}
	if initGPS != "" {
		cfg.Location.Device = initGPS
	}
	if err := initProject(dir, cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("potholerec initialized")
	fmt.Printf("  Camera:   %s (%dx%d @ %d fps)\n", cfg.Capture.Device, cfg.Capture.Width, cfg.Capture.Height, cfg.Capture.FPS)
	fmt.Printf("  GPS:      %s\n", cfg.Location.Device)
	fmt.Printf("  Timezone: %s (%s)\n", cfg.Annotate.Timezone, cfg.Annotate.ZoneLabel)
	fmt.Println()
	fmt.Printf("Configuration written to %s/config.yaml\n", log.StateDir)
	fmt.Println("Ready to run: potholerec record")
	return nil
}

// initProject validates and writes cfg and keeps runtime files out of git.
func initProject(dir string, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.WriteConfig(dir, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := ensureGitignore(dir, cfg.Export.ArchiveName); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to set up .gitignore: %v\n", err)
	}
	return nil
}

// confirm prints prompt and reports whether the answer was yes.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	reader := bufio.NewReader(in)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

// ensureGitignore appends recorder runtime files to .gitignore if missing.
func ensureGitignore(dir, archiveName string) error {
	gitignorePath := filepath.Join(dir, ".gitignore")

	// config.yaml is committed; logs and recordings are not.
	requiredEntries := []string{
		log.StateDir + "/log.jsonl",
		log.StateDir + "/debug.log",
		archiveName,
		"*.webm",
	}

	existing := ""
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existing = string(data)
	}

	var missing []string
	for _, entry := range requiredEntries {
		if !strings.Contains(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var toAppend strings.Builder
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		toAppend.WriteString("\n")
	}
	if existing != "" {
		toAppend.WriteString("\n# Added by potholerec init\n")
	}
	for _, entry := range missing {
		toAppend.WriteString(entry + "\n")
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening .gitignore: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(toAppend.String()); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}
	return nil
}
