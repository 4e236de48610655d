package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const defaultConfigDir = "./config"

// newRootCmd builds the command tree. Running the root without a subcommand is "run".
func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:   "sheetwatch",
		Short: "Watch spreadsheet workbooks and report cell-level changes",
		Long: `Watch spreadsheet workbooks for external modifications.

Every change is reported as a sheet or cell event by comparing the workbook
against its last known snapshot. Cells matching the highlight predicate are
filled after a backup of the original file is written.

Examples:
  sheetwatch --config-dir /etc/sheetwatch
  sheetwatch diff before.xlsx after.xlsx
  sheetwatch highlight --marker TODO report.xlsx`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), configDir)
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir, "Directory holding config.yaml")

	root.AddCommand(
		newRunCmd(&configDir),
		newDiffCmd(),
		newHighlightCmd(),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the watcher (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), *configDir)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sheetwatch %s\n", version)
		},
	}
}
