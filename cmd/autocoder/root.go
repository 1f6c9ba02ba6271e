package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "autocoder",
	Short: "Recursive code generation with test-driven refinement",
	Long: `autocoder turns a natural-language specification into code and tests.

A build designs a solution, then either codes it directly or splits it into
a dev plan whose steps are delegated to subcoders. Generated tests are run
and the code is refined until they pass or the iteration budget runs out.

Builds write into a project home (default: current directory) and keep
their state under <home>/.autocoder/.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
