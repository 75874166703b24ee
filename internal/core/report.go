package core

// report.go writes the failed-rows report a run leaves beside its
// input, so the user can fix and re-run just the bad rows.

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFailedReport writes a run's failed rows as a CSV next to the
// input file, named "<input stem> - failed.csv". The first column
// carries the failure reason, then the input's own columns follow. A
// report left over from an earlier run of the same file is replaced.
func WriteFailedReport(inputPath string, headers []string, failed []FailedRow) (string, error) {
	if len(failed) == 0 {
		return "", nil
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	path := filepath.Join(filepath.Dir(inputPath), stem+" - failed.csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"reason"}, headers...)); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	for _, fr := range failed {
		row := make([]string, 0, len(headers)+1)
		row = append(row, fr.Reason)
		row = append(row, fr.Data...)
		for len(row) < len(headers)+1 {
			row = append(row, "")
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write report: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
