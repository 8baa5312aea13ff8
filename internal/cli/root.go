// Package cli defines Cobra command definitions for the potholerec CLI.
// This file contains the root command, global flags, and Execute.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configDir string
	verbose   bool
	version   = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "potholerec",
	Short: "Record road-defect video with a GPS track and annotated photos",
	Long: `potholerec records a video from a V4L2 camera while logging GPS fixes
from an NMEA receiver, lets you snap captioned photos on demand, and
packages video, GPX track and photos into one zip for defect reporting.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Project directory holding .potholerec/")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log capture and GPS diagnostics at debug level")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(logCmd)
}
