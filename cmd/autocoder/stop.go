package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/autocoder/internal/control"
)

var stopHome string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running build of a project to stop",
	Long: `Signal the build running in a project home to stop gracefully.

The build finishes its current step, records itself as cancelled and
leaves every file it wrote in place.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		home, err := filepath.Abs(stopHome)
		if err != nil {
			return fmt.Errorf("resolve project home: %w", err)
		}
		if _, err := os.Stat(control.LockPath(home)); errors.Is(err, os.ErrNotExist) {
			printStatus(out, "!", "No build is running in "+home, color.FgYellow)
			return nil
		}
		if err := control.RequestStop(home); err != nil {
			return fmt.Errorf("request stop: %w", err)
		}
		printStatus(out, "✓", "Stop requested for the build in "+home, color.FgGreen)
		return nil
	},
}

func init() {
	stopCmd.Flags().StringVar(&stopHome, "home", ".", "Project home directory")
}
