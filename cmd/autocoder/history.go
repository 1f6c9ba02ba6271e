package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/autocoder/internal/state"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

var (
	historyHome  string
	historyLimit int
	historyTree  bool
	historyPurge time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past builds of a project",
	Long: `List the builds recorded for a project home, newest first.

With --tree, sub-builds started for dev plan steps are shown under the
build that delegated to them, together with their test iterations.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyHome, "home", ".", "Project home directory")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of builds to show")
	historyCmd.Flags().BoolVar(&historyTree, "tree", false, "Show sub-builds and test iterations")
	historyCmd.Flags().DurationVar(&historyPurge, "purge", 0, "Delete finished builds older than this duration (e.g. 720h)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	home, err := filepath.Abs(historyHome)
	if err != nil {
		return fmt.Errorf("resolve project home: %w", err)
	}

	if _, err := os.Stat(state.ProjectDBPath(home)); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "No builds recorded. Run 'autocoder build <spec>' to start.")
		return nil
	}

	db, err := state.OpenProject(home)
	if err != nil {
		return fmt.Errorf("open build ledger: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if historyPurge > 0 {
		n, err := db.PurgeOldBuilds(ctx, historyPurge)
		if err != nil {
			return fmt.Errorf("purge builds: %w", err)
		}
		printStatus(out, "✓", fmt.Sprintf("Purged %d build(s) older than %s", n, historyPurge), color.FgGreen)
	}

	builds, err := db.ListBuilds(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("list builds: %w", err)
	}
	if len(builds) == 0 {
		fmt.Fprintln(out, "No builds recorded.")
		return nil
	}

	for _, b := range builds {
		printBuild(out, b, 0)
		if historyTree {
			if err := printTree(ctx, out, db, b.ID, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

func printBuild(out io.Writer, b models.BuildRecord, depth int) {
	indent := strings.Repeat("  ", depth)
	status := color.New(statusColor(b.Status)).Sprintf("%-9s", b.Status)

	elapsed := "running"
	if b.FinishedAt != nil {
		elapsed = formatDuration(b.FinishedAt.Sub(b.StartedAt))
	}
	fmt.Fprintf(out, "%s%s %s  %-6s  %s  %d refines  %d files  %s\n",
		indent, status, shortID(b.ID), b.Coder,
		b.StartedAt.Local().Format("2006-01-02 15:04"), b.Iterations, b.FilesTouched, elapsed)
	fmt.Fprintf(out, "%s  %s\n", indent, truncate(b.Specification.String(), 72))
	if b.Error != "" {
		fmt.Fprintf(out, "%s  %s\n", indent, color.RedString(truncate(b.Error, 72)))
	}
}

func printTree(ctx context.Context, out io.Writer, db *state.DB, buildID string, depth int) error {
	iterations, err := db.ListIterations(ctx, buildID)
	if err != nil {
		return fmt.Errorf("list iterations: %w", err)
	}
	indent := strings.Repeat("  ", depth)
	for _, it := range iterations {
		result := color.GreenString("pass")
		if !it.Success {
			result = color.RedString("fail")
		}
		fmt.Fprintf(out, "%s· iteration %d: %s (%d test files, +%d/-%d lines)\n",
			indent, it.Iteration, result, it.TestFiles, it.LinesAdded, it.LinesRemoved)
	}

	children, err := db.ListChildren(ctx, buildID)
	if err != nil {
		return fmt.Errorf("list sub-builds: %w", err)
	}
	for _, child := range children {
		printBuild(out, child, depth)
		if err := printTree(ctx, out, db, child.ID, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
