package core

// export.go flattens remote records back into a table: fixed columns
// first, then whatever other payload fields the server sent, then one
// column per distinct extra field across the whole result set. Records
// without a value for a column get a blank cell, and output files are
// never overwritten.

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/elabsync/elabsync/internal/elabftw"
)

// leadExportColumns open every exported table, in this order.
var leadExportColumns = []string{"id", "title", "tags", "body"}

// droppedExportColumns are server bookkeeping fields that never belong
// in an exported table.
var droppedExportColumns = map[string]bool{
	"team": true, "elabid": true, "category": true, "locked": true,
	"lockedby": true, "locked_at": true, "userid": true, "canread": true,
	"canwrite": true, "available": true, "lastchangeby": true, "state": true,
	"events_start": true, "content_type": true, "created_at": true,
	"access_key": true, "is_bookable": true, "canbook": true,
	"book_max_minutes": true, "book_max_slots": true,
	"book_can_overlap": true, "book_is_cancellable": true,
	"book_cancel_minutes": true, "status": true, "custom_id": true,
	"timestamped": true, "timestampedby": true, "timestamped_at": true,
	"book_users_can_in_past": true, "is_procurable": true,
	"proc_pack_qty": true, "proc_price_notax": true, "proc_price_tax": true,
	"proc_currency": true, "page": true, "type": true, "status_color": true,
	"category_color": true, "recent_comment": true, "has_comment": true,
	"tags_id": true, "events_start_itemid": true, "next_step": true,
	"firstname": true, "lastname": true, "orcid": true, "up_item_id": true,
}

// ExportRequest describes one export.
type ExportRequest struct {
	Profile    Profile
	CategoryID int    // Used when the profile needs a category
	OutName    string // Optional output name; a timestamped one when empty
	OutDir     string // Defaults to the current directory
	Format     string // "xlsx" (default) or "csv"
}

// ExportResult names the written file and its dimensions.
type ExportResult struct {
	Path    string
	Records int
	Columns int
}

// Export fetches every record of a category (or all experiments) and
// writes them as one table. Zero records yield an ExportError and no
// file at all, never a headers-only table.
func (e *Engine) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	var (
		items []elabftw.Item
		err   error
		scope string
	)
	if req.Profile.Info.Kind == elabftw.KindExperiment {
		scope = "experiments"
		items, err = e.client.ListExperiments(ctx)
	} else {
		if req.CategoryID <= 0 {
			return nil, errors.New("no category selected")
		}
		scope = fmt.Sprintf("category %d", req.CategoryID)
		items, err = e.client.ListRecords(ctx, req.CategoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	if len(items) == 0 {
		return nil, &ExportError{Reason: fmt.Sprintf("nothing to export: %s has no records", scope)}
	}

	header, rows := flattenItems(items)

	path, err := exportPath(req)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = writeCSVTable(path, header, rows)
	default:
		err = writeXLSXTable(path, header, rows)
	}
	if err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}

	e.log.Info("export written", "path", path, "records", len(rows), "columns", len(header))
	return &ExportResult{Path: path, Records: len(rows), Columns: len(header)}, nil
}

// flattenItems computes the union schema over all records and renders
// each record as one row of cells.
func flattenItems(items []elabftw.Item) (header []string, rows [][]string) {
	rawSeen := make(map[string]bool)
	extraSeen := make(map[string]bool)
	for i := range items {
		for k := range items[i].Raw {
			rawSeen[k] = true
		}
		for name := range items[i].Metadata.ExtraFields {
			extraSeen[name] = true
		}
	}

	extras := make([]string, 0, len(extraSeen))
	for name := range extraSeen {
		extras = append(extras, name)
	}
	sort.Slice(extras, func(i, j int) bool {
		return strings.ToLower(extras[i]) < strings.ToLower(extras[j])
	})

	lead := make(map[string]bool, len(leadExportColumns))
	for _, c := range leadExportColumns {
		lead[c] = true
	}
	var payload []string
	for k := range rawSeen {
		// An extra field with a payload field's name wins the column;
		// extras are user data, the payload copy is bookkeeping.
		if lead[k] || droppedExportColumns[k] || k == "metadata" || extraSeen[k] {
			continue
		}
		payload = append(payload, k)
	}
	sort.Strings(payload)

	header = make([]string, 0, len(leadExportColumns)+len(payload)+len(extras))
	header = append(header, leadExportColumns...)
	header = append(header, payload...)
	header = append(header, extras...)

	rows = make([][]string, 0, len(items))
	for i := range items {
		it := &items[i]
		row := make([]string, 0, len(header))
		for _, col := range leadExportColumns {
			if col == "body" {
				row = append(row, StripHTML(renderCell(it.Raw[col])))
				continue
			}
			row = append(row, renderCell(it.Raw[col]))
		}
		for _, col := range payload {
			row = append(row, renderCell(it.Raw[col]))
		}
		for _, col := range extras {
			if f, ok := it.Metadata.ExtraFields[col]; ok {
				row = append(row, renderCell(f.Value))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}

// renderCell renders an arbitrary JSON value as cell text. Whole
// numbers lose their ".0", string lists join with "; " so a re-import
// splits them back apart, and anything else serializes as compact JSON.
func renderCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, "; ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, el := range t {
			s, ok := el.(string)
			if !ok {
				parts = nil
				break
			}
			parts = append(parts, s)
		}
		if parts != nil {
			return strings.Join(parts, "; ")
		}
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// exportPath decides the output file: the caller's name, sanitized and
// carrying the right extension, or a timestamped default. An occupied
// path gets a numeric suffix instead of being overwritten.
func exportPath(req ExportRequest) (string, error) {
	ext := ".xlsx"
	if strings.EqualFold(req.Format, "csv") {
		ext = ".csv"
	}

	name := SanitizeFileName(req.OutName)
	if ne := strings.ToLower(filepath.Ext(name)); ne == ".csv" || ne == ".xlsx" {
		ext = ne
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if name == "" {
		ts := time.Now().Format("20060102_150405")
		if req.Profile.Info.Kind == elabftw.KindExperiment {
			name = "experiments_export_" + ts
		} else {
			name = fmt.Sprintf("category_%d_%s", req.CategoryID, ts)
		}
	}

	dir := req.OutDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	return uniquePath(filepath.Join(dir, name+ext)), nil
}

// SanitizeFileName reduces a user-supplied name to a safe file name:
// ASCII letters, digits, dash, underscore and dot survive, spaces
// become underscores, everything else is dropped.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

// uniquePath appends _1, _2, … before the extension until the name is
// free.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// writeXLSXTable writes the table as a single-sheet workbook, header
// row first.
func writeXLSXTable(path string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Export"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	for c, name := range header {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, val := range row {
			if val == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(path)
}

// writeCSVTable writes the table as UTF-8 CSV.
func writeCSVTable(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
