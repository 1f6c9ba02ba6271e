package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/autocoder/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify autocoder configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/autocoder/config.yaml
Project-specific overrides can be placed in .autocoder.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			values, err := config.Values()
			if err != nil {
				return err
			}
			for _, key := range config.Keys() {
				fmt.Fprintf(out, "%s: %s\n", key, values[key])
			}
			if path := config.GetProjectConfigPath(); path != "" {
				fmt.Fprintf(out, "\n(project overrides from %s)\n", path)
			}
		case 1:
			value, err := config.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
		default:
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			printStatus(out, "✓", fmt.Sprintf("Set %s in %s", args[0], config.GetUserConfigPath()), color.FgGreen)
		}
		return nil
	},
}
