package main

import (
	"github.com/spf13/cobra"

	"github.com/elabsync/elabsync/internal/core"
)

var patchCategory int

var patchCmd = &cobra.Command{
	Use:   "patch <record-type> <file>",
	Short: "Update existing records matched by their id column",
	Long: `Reads a CSV or XLSX table and updates one existing record per data
row, matched by the id column. Rows whose id is missing or unknown fail
individually; the rest of the run continues. Only the columns present in
the table are touched; everything else on the record stays as it is.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTable(cmd, args[0], args[1], core.ModePatch, patchCategory)
	},
}

func init() {
	patchCmd.Flags().IntVar(&patchCategory, "category", 0, "category id the records live in (required for resources)")
	rootCmd.AddCommand(patchCmd)
}
