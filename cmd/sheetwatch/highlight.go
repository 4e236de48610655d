package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bassista/sheetwatch/internal/workbook"
)

func newHighlightCmd() *cobra.Command {
	var (
		marker     string
		condition  string
		fillColor  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "highlight FILE",
		Short: "Fill matching cells once and back up the original",
		Long: `Run a single highlight pass on FILE.

Cells whose value contains the marker (or satisfy --condition) get the fill
color. The original is copied to FILE.backup_<timestamp> before it is replaced.
Nothing is written when no cell needs a new fill.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			predicate, err := workbook.NewPredicate(marker, condition)
			if err != nil {
				return err
			}
			res, err := workbook.NewExcelizeBackend(fillColor).Highlight(cmd.Context(), args[0], predicate)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return json.NewEncoder(out).Encode(res)
			}
			if !res.Modified {
				fmt.Fprintln(out, "nothing to highlight")
				return nil
			}
			fmt.Fprintf(out, "highlighted %d cell(s), backup written to %s\n", len(res.Cells), res.BackupPath)
			for _, c := range res.Cells {
				fmt.Fprintf(out, "  %s\n", c)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&marker, "marker", workbook.DefaultMarker, "Substring that marks a cell for highlighting")
	cmd.Flags().StringVar(&condition, "condition", "", "expr-lang condition over value, sheet, cell and marker")
	cmd.Flags().StringVar(&fillColor, "fill-color", workbook.DefaultFillColor, "Fill color as RRGGBB")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	return cmd
}
