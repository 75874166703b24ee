package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/elabsync/elabsync/internal/core"
	"github.com/elabsync/elabsync/internal/elabftw"
	"github.com/elabsync/elabsync/internal/logging"
)

// formData is everything the form page template needs.
type formData struct {
	Profiles   []core.ProfileInfo
	Categories []elabftw.Category
	Flash      string // Rendered into the message area on load
	FlashError bool
}

// handleForm renders the tabbed import/patch/export form. Categories
// are fetched fresh on every page load so a category created in the lab
// notebook shows up after a reload.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	data := formData{Profiles: s.service.ListProfiles()}

	cats, err := s.service.Categories(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("category fetch failed", "error", err)
		msg := core.MapError(err)
		data.Flash = fmt.Sprintf("%s (%s). %s", msg.Message, msg.Code, msg.Action)
		data.FlashError = true
	}
	data.Categories = cats

	renderPage(w, r, data)
}

// handleCategories returns the category list as JSON for dropdown
// refreshes.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.service.Categories(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, cats)
}

// handleStartRun accepts an uploaded table and starts a tracked sync
// run. The response carries the run id; the page follows the run on the
// progress stream and fetches the result when it closes.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	profileKey := chi.URLParam(r, "profileKey")

	maxSize := s.cfg.Sync.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondError(w, r, fmt.Errorf("file too large: %w", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !core.SupportedExtension(header.Filename) {
		s.respondError(w, r,
			fmt.Errorf("unsupported file type %q", filepath.Ext(header.Filename)),
			http.StatusBadRequest)
		return
	}

	mode := core.ModeCreate
	if r.FormValue("mode") == string(core.ModePatch) {
		mode = core.ModePatch
	}
	categoryID := parseIntForm(r, "category")

	// The run outlives this request, so the upload is spooled to a temp
	// file the engine can stream from; it is removed when the run ends.
	tmpPath, err := spoolUpload(file, header.Filename)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("store upload: %w", err), http.StatusInternalServerError)
		return
	}

	runID, err := s.service.StartRun(r.Context(), profileKey, mode, tmpPath, header.Filename, categoryID)
	if err != nil {
		os.Remove(tmpPath)
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	go func() {
		s.service.GetRunResult(runID)
		os.Remove(tmpPath)
	}()

	writeJSON(w, map[string]string{"run_id": runID})
}

// spoolUpload copies an uploaded file to a temp file and returns its
// path. The original extension is kept so the row loader can pick the
// right format.
func spoolUpload(src io.Reader, name string) (string, error) {
	tmp, err := os.CreateTemp("", "elabsync-*"+filepath.Ext(name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// progressResponse is the SSE payload for one progress update.
type progressResponse struct {
	RunID      string `json:"run_id"`
	Phase      string `json:"phase"`
	FileName   string `json:"file_name"`
	TotalRows  int    `json:"total_rows"`
	CurrentRow int    `json:"current_row"`
	Succeeded  int    `json:"succeeded"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// handleRunProgress streams run progress as Server-Sent Events. The
// event id is the number of processed rows, so a reconnecting client
// can pass lastEventId and skip states it has already rendered.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			processed := progress.Succeeded + progress.Skipped + progress.Failed
			if lastEventIDStr != "" && processed <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progressResponse{
				RunID:      progress.RunID,
				Phase:      string(progress.Phase),
				FileName:   progress.FileName,
				TotalRows:  progress.TotalRows,
				CurrentRow: progress.CurrentRow,
				Succeeded:  progress.Succeeded,
				Skipped:    progress.Skipped,
				Failed:     progress.Failed,
				Error:      progress.Error,
			})
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", processed, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// failedRowResponse is one rejected row in a run result.
type failedRowResponse struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// runResultResponse wraps a run result for the page, with the flash
// string pre-rendered.
type runResultResponse struct {
	RunID      string              `json:"run_id"`
	Profile    string              `json:"profile"`
	Mode       string              `json:"mode"`
	FileName   string              `json:"file_name"`
	TotalRows  int                 `json:"total_rows"`
	Succeeded  int                 `json:"succeeded"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
	FailedRows []failedRowResponse `json:"failed_rows,omitempty"`
	ReportPath string              `json:"report_path,omitempty"`
	Duration   string              `json:"duration"`
	Flash      string              `json:"flash"`
	Error      string              `json:"error,omitempty"`
}

// handleRunResult returns the final outcome of a run, blocking until
// the run finishes.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	result, err := s.service.GetRunResult(runID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	resp := runResultResponse{
		RunID:      result.RunID,
		Profile:    result.ProfileKey,
		Mode:       string(result.Mode),
		FileName:   result.FileName,
		TotalRows:  result.TotalRows,
		Succeeded:  result.Succeeded,
		Skipped:    result.Skipped,
		Failed:     result.Failed,
		ReportPath: result.ReportPath,
		Duration:   result.Duration.String(),
		Flash:      result.Flash(s.cfg.Sync.FlashErrorLimit),
		Error:      result.Error,
	}
	for _, fr := range result.FailedRows {
		resp.FailedRows = append(resp.FailedRows, failedRowResponse{Line: fr.Line, Reason: fr.Reason})
	}
	if result.Error != "" {
		msg := core.MapError(errors.New(result.Error))
		resp.Flash = fmt.Sprintf("%s (%s). %s", msg.Message, msg.Code, msg.Action)
	}
	writeJSON(w, resp)
}

// handleCancelRun cancels an in-progress run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.CancelRun(runID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

// handleExport runs an export synchronously and answers with the
// exported file as a download. The file also stays on disk in the
// configured export directory, like a CLI export would leave it.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	profile, ok := core.GetProfile(r.FormValue("profile"))
	if !ok {
		s.respondError(w, r, fmt.Errorf("unknown profile: %s", r.FormValue("profile")), http.StatusBadRequest)
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = s.cfg.Export.Format
	}
	req := core.ExportRequest{
		Profile:    profile,
		CategoryID: parseIntForm(r, "category"),
		OutName:    r.FormValue("filename"),
		OutDir:     s.cfg.Export.Dir,
		Format:     format,
	}

	result, err := s.service.Export(r.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		var exportErr *core.ExportError
		if errors.As(err, &exportErr) {
			// Empty result: a user-visible message, not a server fault.
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}

	logging.FromContext(r.Context()).Info("export downloaded",
		"path", result.Path,
		"records", result.Records,
	)

	f, err := os.Open(result.Path)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("write export: %w", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	name := filepath.Base(result.Path)
	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, name))
	io.Copy(w, f)
}

// contentTypeFor maps an export file name to its MIME type.
func contentTypeFor(name string) string {
	if filepath.Ext(name) == ".csv" {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// parseIntForm parses an integer form value, 0 when absent or invalid.
func parseIntForm(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.FormValue(name))
	if err != nil {
		return 0
	}
	return v
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing left to do but log.
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
