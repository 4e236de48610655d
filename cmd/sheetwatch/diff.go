package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bassista/sheetwatch/internal/snapshot"
	"github.com/bassista/sheetwatch/internal/workbook"
)

func newDiffCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Print the change events between two workbooks",
		Long: `Capture two workbooks and print the events that turn OLD into NEW.

Sheet events come first, then cell events ordered by sheet and cell address.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := workbook.NewExcelizeBackend("")
			old, err := backend.Capture(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cur, err := backend.Capture(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			abs, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			events := snapshot.DiffResource(abs, old, cur)

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "no changes")
				return nil
			}
			for _, ev := range events {
				fmt.Fprintln(out, ev.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the events as JSON")
	return cmd
}
