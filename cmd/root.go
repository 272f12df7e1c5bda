// Package cmd defines and implements the CLI commands for the
// harvester executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests corporate human-rights allegation reports",
		Long: `harvester walks a business & human rights tracking site, extracts
each allegation story together with the linked company responses, and
maintains a deduplicated JSON corpus that is safe to rebuild
incrementally across runs.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./harvester.yaml)")

	cmd.AddCommand(newHarvestCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
