package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elabsync/elabsync/internal/core"
)

var importCategory int

var importCmd = &cobra.Command{
	Use:   "import <record-type> <file>",
	Short: "Create one record per table row",
	Long: `Reads a CSV or XLSX table and creates one record per data row.
Columns matching the record type's fields map onto them; every other
column becomes an extra field. Rows the server rejects are reported and
written to "<file> - failed.csv"; the rest of the run continues.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTable(cmd, args[0], args[1], core.ModeCreate, importCategory)
	},
}

func init() {
	importCmd.Flags().IntVar(&importCategory, "category", 0, "target category id (required for resources)")
	rootCmd.AddCommand(importCmd)
}

// runTable executes one synchronous run and prints its summary. Rows
// that failed make the command exit non-zero after the summary.
func runTable(cmd *cobra.Command, profileKey, filePath string, mode core.Mode, categoryID int) error {
	profile, err := lookupProfile(profileKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Sync.RunTimeout)
	defer cancel()

	result, err := newEngine().Run(ctx, core.RunRequest{
		Profile:    profile,
		Mode:       mode,
		FilePath:   filePath,
		CategoryID: categoryID,
	})
	if err != nil {
		return userError(err)
	}

	fmt.Println(result.Flash(cfg.Sync.FlashErrorLimit))
	if result.ReportPath != "" {
		fmt.Printf("failed rows written to %s\n", result.ReportPath)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d rows failed", result.Failed, result.TotalRows)
	}
	return nil
}
