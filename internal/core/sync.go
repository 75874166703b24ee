package core

// sync.go drives one run of the pipeline: open the input, bind its
// header, resolve the remote side once, then issue one logical API call
// per record, strictly in file order. A bad row marks one failure and
// the loop moves on; only file-level problems and cancellation abort a
// run early.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elabsync/elabsync/internal/elabftw"
)

// DefaultMaxFileSize caps input files at 100 MiB unless configured.
const DefaultMaxFileSize = 100 << 20

// ErrRowSkipped marks a create-mode row that already names a record id.
// The record exists, so the run leaves the row alone.
var ErrRowSkipped = errors.New("row already has a record id")

// RunRequest describes one sync run.
type RunRequest struct {
	RunID      string // Assigned when empty
	Profile    Profile
	Mode       Mode
	FilePath   string
	FileName   string // Display name; defaults to the base of FilePath
	CategoryID int    // Target category, required when the profile needs one
	Progress   ProgressCallback
}

// Engine executes runs against a remote server. It keeps no per-run
// state, so a single engine can serve any number of sequential or
// tracked runs.
type Engine struct {
	client         elabftw.Client
	log            *slog.Logger
	maxFileSize    int64
	reportFailures bool
}

// NewEngine creates an engine on the given client.
func NewEngine(client elabftw.Client, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		client:         client,
		log:            log,
		maxFileSize:    DefaultMaxFileSize,
		reportFailures: true,
	}
}

// SetMaxFileSize overrides the input size cap. size <= 0 disables it.
func (e *Engine) SetMaxFileSize(size int64) {
	e.maxFileSize = size
}

// SetFailedRowsReport toggles writing "<input> - failed.csv" beside an
// input whose run had failed rows.
func (e *Engine) SetFailedRowsReport(on bool) {
	e.reportFailures = on
}

// Categories lists the remote resource categories.
func (e *Engine) Categories(ctx context.Context) ([]elabftw.Category, error) {
	return e.client.ListCategories(ctx)
}

// runContext carries everything a run resolves before its first row:
// the category template, the declared-field index, and in patch mode
// the remote records addressed by id. It dies with the run, so nothing
// remote is ever cached across runs.
type runContext struct {
	kind       elabftw.Kind
	mode       Mode
	categoryID int
	tmpl       elabftw.Metadata
	defs       *FieldDefs
	existing   map[int]*elabftw.Item
}

// Run executes one sync run. The returned error is non-nil only when
// the run aborted: an unreadable file, a header missing required
// columns, a failed remote lookup, or cancellation. Per-row failures
// land in the result instead of the error.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := time.Now()
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	if req.FileName == "" {
		req.FileName = filepath.Base(req.FilePath)
	}

	log := e.log.With("run_id", req.RunID, "profile", req.Profile.Info.Key, "mode", string(req.Mode))
	log.Info("run starting", "file", req.FileName)

	prog := RunProgress{
		RunID:      req.RunID,
		ProfileKey: req.Profile.Info.Key,
		Mode:       req.Mode,
		Phase:      PhaseStarting,
		FileName:   req.FileName,
	}
	emit := func() {
		if req.Progress != nil {
			req.Progress(prog)
		}
	}
	emit()

	if req.Profile.NeedsCategory && req.CategoryID <= 0 {
		return nil, errors.New("no category selected")
	}
	if !req.Profile.NeedsCategory {
		// A stray category selection must not leak into records that do
		// not live in one.
		req.CategoryID = 0
	}

	prog.Phase = PhaseReading
	emit()

	rows, err := OpenRows(req.FilePath, e.maxFileSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mapping, err := BuildMappingTable(req.Profile, req.Mode, rows.Headers())
	if err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			schemaErr.FileName = req.FileName
		}
		return nil, err
	}

	rc, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	prog.Phase = PhaseSyncing
	emit()

	result := RunResult{
		RunID:      req.RunID,
		ProfileKey: req.Profile.Info.Key,
		Mode:       req.Mode,
		FileName:   req.FileName,
	}
	for {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return &result, err
		}

		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A row that cannot even be read aborts the remainder; the
			// outcomes recorded so far stay in the result.
			result.Duration = time.Since(start)
			return &result, err
		}

		prog.CurrentRow = row.Line
		rec, rowErr := mapping.MapRow(row)
		if rowErr == nil {
			rowErr = e.syncRecord(ctx, rc, rec)
		}
		if rowErr != nil && ctx.Err() != nil {
			result.Duration = time.Since(start)
			return &result, ctx.Err()
		}

		result.TotalRows++
		switch {
		case rowErr == nil:
			result.Succeeded++
		case errors.Is(rowErr, ErrRowSkipped):
			result.Skipped++
			log.Debug("row skipped", "row", row.Line, "id", rec.ID)
		default:
			result.Failed++
			result.FailedRows = append(result.FailedRows, FailedRow{
				Line:   row.Line,
				Reason: failureReason(rowErr),
				Data:   row.Cells,
			})
			log.Warn("row failed", "row", row.Line, "error", rowErr)
		}
		prog.Succeeded, prog.Skipped, prog.Failed = result.Succeeded, result.Skipped, result.Failed
		prog.TotalRows = result.TotalRows
		emit()
	}

	if e.reportFailures && len(result.FailedRows) > 0 {
		path, err := WriteFailedReport(req.FilePath, rows.Headers(), result.FailedRows)
		if err != nil {
			log.Warn("failed-rows report not written", "error", err)
		} else {
			result.ReportPath = path
			log.Info("failed-rows report written", "path", path)
		}
	}

	result.Duration = time.Since(start)
	prog.Phase = PhaseComplete
	emit()
	log.Info("run complete",
		"total", result.TotalRows,
		"succeeded", result.Succeeded,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration)
	return &result, nil
}

// prepare resolves the remote side of a run. These are the only API
// calls a run makes outside the per-record loop.
func (e *Engine) prepare(ctx context.Context, req RunRequest) (*runContext, error) {
	rc := &runContext{
		kind:       req.Profile.Info.Kind,
		mode:       req.Mode,
		categoryID: req.CategoryID,
		defs:       NewFieldDefs(nil),
	}

	if req.Profile.NeedsCategory {
		cat, err := e.client.GetCategory(ctx, req.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("fetch category %d: %w", req.CategoryID, err)
		}
		rc.tmpl = parseTemplate(cat, e.log)
		rc.defs = NewFieldDefs(rc.tmpl.ExtraFields)
	}

	if req.Mode == ModePatch {
		var (
			items []elabftw.Item
			err   error
		)
		if rc.kind == elabftw.KindExperiment {
			items, err = e.client.ListExperiments(ctx)
		} else {
			items, err = e.client.ListRecords(ctx, req.CategoryID)
		}
		if err != nil {
			return nil, fmt.Errorf("list existing records: %w", err)
		}
		rc.existing = make(map[int]*elabftw.Item, len(items))
		for i := range items {
			rc.existing[items[i].ID] = &items[i]
		}
	}
	return rc, nil
}

// parseTemplate decodes the category's metadata template. A malformed
// template degrades to empty metadata so the run can still proceed on
// inferred fields alone.
func parseTemplate(cat *elabftw.Category, log *slog.Logger) elabftw.Metadata {
	raw := strings.TrimSpace(cat.Metadata)
	if raw == "" {
		return elabftw.Metadata{}
	}
	var tmpl elabftw.Metadata
	if err := json.Unmarshal([]byte(raw), &tmpl); err != nil {
		log.Warn("category template unreadable", "category", cat.ID, "error", err)
		return elabftw.Metadata{}
	}
	return tmpl
}

// syncRecord performs the one logical API call for a record.
func (e *Engine) syncRecord(ctx context.Context, rc *runContext, rec Record) error {
	if rc.mode == ModePatch {
		return e.patchOne(ctx, rc, rec)
	}
	return e.createOne(ctx, rc, rec)
}

// createOne creates a record from a row. Rows that already name a
// record id come back ErrRowSkipped, so a partially imported file can
// be re-run without duplicating what exists.
func (e *Engine) createOne(ctx context.Context, rc *runContext, rec Record) error {
	if rec.ID > 0 {
		return ErrRowSkipped
	}

	nr := elabftw.NewRecord{
		Title:    rec.Title,
		Tags:     rec.Tags,
		Category: rc.categoryID,
		Body:     rec.Body,
	}
	meta := rc.tmpl.Clone()
	if ApplyExtras(&meta, rc.defs, rec.Extras) > 0 {
		nr.Metadata = &meta
	}

	id, err := e.client.CreateRecord(ctx, rc.kind, nr)
	if err != nil {
		return err
	}
	return e.attachFiles(ctx, rc, id, rec.FilesDir)
}

// patchOne updates the existing record a row addresses by id. The
// record's current metadata is the merge base, so declared fields and
// the elabftw section survive untouched.
func (e *Engine) patchOne(ctx context.Context, rc *runContext, rec Record) error {
	if rec.ID <= 0 {
		return errors.New("missing record id")
	}
	item, ok := rc.existing[rec.ID]
	if !ok {
		return fmt.Errorf("record %d not found", rec.ID)
	}

	p := elabftw.RecordPatch{
		Title:    rec.Title,
		Tags:     rec.Tags,
		Category: rc.categoryID,
		Body:     rec.Body,
	}
	meta := item.Metadata.Clone()
	if ApplyExtras(&meta, NewFieldDefs(meta.ExtraFields), rec.Extras) > 0 {
		p.Metadata = &meta
	}
	return e.client.PatchRecord(ctx, rc.kind, rec.ID, p)
}

// attachFiles uploads every file under dir to a freshly created record,
// walking subdirectories the way attachment folders are usually laid
// out.
func (e *Engine) attachFiles(ctx context.Context, rc *runContext, id int, dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("attachments folder %q is not a directory", dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := e.client.UploadAttachment(ctx, rc.kind, id, d.Name(), f); err != nil {
			return fmt.Errorf("upload %s: %w", d.Name(), err)
		}
		return nil
	})
}

// failureReason trims a row error down to the short text the run
// summary lists after the row number.
func failureReason(err error) string {
	var apiErr *elabftw.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
