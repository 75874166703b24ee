package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/elabsync/elabsync/internal/elabftw"
)

// fakeClient is an in-memory elabftw.Client. CreateRecord can be told
// to reject specific titles so tests can mix successes and failures in
// one run.
type fakeClient struct {
	mu sync.Mutex

	categories  []elabftw.Category
	category    *elabftw.Category
	items       []elabftw.Item
	experiments []elabftw.Item

	nextID     int
	created    []elabftw.NewRecord
	patched    []patchCall
	uploaded   []string
	failTitles map[string]error

	categoryCalls int
	listCalls     int
}

type patchCall struct {
	id    int
	patch elabftw.RecordPatch
}

func (f *fakeClient) ListCategories(ctx context.Context) ([]elabftw.Category, error) {
	return f.categories, nil
}

func (f *fakeClient) GetCategory(ctx context.Context, id int) (*elabftw.Category, error) {
	f.mu.Lock()
	f.categoryCalls++
	f.mu.Unlock()
	if f.category == nil {
		return nil, &elabftw.APIError{StatusCode: 404, Message: "category not found"}
	}
	return f.category, nil
}

func (f *fakeClient) ListRecords(ctx context.Context, categoryID int) ([]elabftw.Item, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	return f.items, nil
}

func (f *fakeClient) ListExperiments(ctx context.Context) ([]elabftw.Item, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	return f.experiments, nil
}

func (f *fakeClient) GetRecord(ctx context.Context, kind elabftw.Kind, id int) (*elabftw.Item, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			return &f.items[i], nil
		}
	}
	return nil, &elabftw.APIError{StatusCode: 404, Message: "not found"}
}

func (f *fakeClient) CreateRecord(ctx context.Context, kind elabftw.Kind, rec elabftw.NewRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTitles[rec.Title]; ok {
		return 0, err
	}
	f.nextID++
	f.created = append(f.created, rec)
	return f.nextID, nil
}

func (f *fakeClient) PatchRecord(ctx context.Context, kind elabftw.Kind, id int, patch elabftw.RecordPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched = append(f.patched, patchCall{id: id, patch: patch})
	return nil
}

func (f *fakeClient) UploadAttachment(ctx context.Context, kind elabftw.Kind, id int, name string, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, fmt.Sprintf("%d/%s", id, name))
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testCategory() *elabftw.Category {
	return &elabftw.Category{
		ID:    7,
		Title: "Chemicals",
		Metadata: `{"extra_fields": {` +
			`"Storage Temp": {"type": "number", "value": ""},` +
			`"Host": {"type": "select", "value": "", "options": ["Mouse", "Rabbit"]}}}`,
	}
}

// ============================================================
// Create runs
// ============================================================

func TestEngineRun_Create(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())

	path := writeTestCSV(t, "title,tags,Storage Temp\nBeaker,glass; lab,4\nFlask,,\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile:    testProfile(),
		Mode:       ModeCreate,
		FilePath:   path,
		CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.TotalRows != 2 || res.Succeeded != 2 || res.Failed != 0 || res.Skipped != 0 {
		t.Fatalf("result = %+v, want 2 succeeded", res)
	}
	if len(client.created) != 2 {
		t.Fatalf("created %d records, want 2", len(client.created))
	}

	first := client.created[0]
	if first.Title != "Beaker" || first.Category != 7 {
		t.Errorf("created[0] = %+v", first)
	}
	if len(first.Tags) != 2 || first.Tags[0] != "glass" {
		t.Errorf("Tags = %v, want [glass lab]", first.Tags)
	}
	if first.Metadata == nil {
		t.Fatal("created[0] has no metadata despite an extra column")
	}
	if got := first.Metadata.ExtraFields["Storage Temp"].Value; got != "4" {
		t.Errorf("Storage Temp = %v, want 4", got)
	}
	// The declared type from the category template survives.
	if got := first.Metadata.ExtraFields["Storage Temp"].Type; got != "number" {
		t.Errorf("Storage Temp type = %q, want number", got)
	}

	// The second row has no extra values, so no metadata patch at all.
	if client.created[1].Metadata != nil {
		t.Errorf("created[1].Metadata = %+v, want nil", client.created[1].Metadata)
	}
}

func TestEngineRun_RecordsInFileOrder(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())

	path := writeTestCSV(t, "title\nfirst\nsecond\nthird\n")
	if _, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(client.created) != len(want) {
		t.Fatalf("created %d records, want %d", len(client.created), len(want))
	}
	for i, rec := range client.created {
		if rec.Title != want[i] {
			t.Errorf("created[%d].Title = %q, want %q", i, rec.Title, want[i])
		}
	}
}

func TestEngineRun_ContinuesPastFailures(t *testing.T) {
	client := &fakeClient{
		category: testCategory(),
		failTitles: map[string]error{
			"Broken": &elabftw.APIError{StatusCode: 400, Message: "an entry with that title already exists"},
		},
	}
	eng := NewEngine(client, testLogger())
	eng.SetFailedRowsReport(false)

	path := writeTestCSV(t, "title\nGood\nBroken\nAlso Good\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 2 succeeded 1 failed", res)
	}
	if got := res.Succeeded + res.Skipped + res.Failed; got != res.TotalRows {
		t.Errorf("counts sum to %d, want TotalRows %d", got, res.TotalRows)
	}
	if len(res.FailedRows) != 1 {
		t.Fatalf("FailedRows = %+v", res.FailedRows)
	}
	fr := res.FailedRows[0]
	if fr.Line != 2 {
		t.Errorf("failed line = %d, want 2", fr.Line)
	}
	// API failures surface the server's own message, not the wrapper.
	if fr.Reason != "an entry with that title already exists" {
		t.Errorf("reason = %q", fr.Reason)
	}
	// The rows after the failure still synced.
	if len(client.created) != 2 || client.created[1].Title != "Also Good" {
		t.Errorf("created = %+v", client.created)
	}
}

func TestEngineRun_CreateSkipsRowsWithID(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())

	path := writeTestCSV(t, "id,title\n,New One\n42,Already There\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Succeeded != 1 || res.Skipped != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 1 succeeded 1 skipped", res)
	}
	if len(client.created) != 1 || client.created[0].Title != "New One" {
		t.Errorf("created = %+v", client.created)
	}
}

func TestEngineRun_AttachesFiles(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())

	attDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(attDir, "gel.png"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(attDir, "notes.txt"), []byte("n"), 0o644); err != nil {
		t.Fatal(err)
	}

	path := writeTestCSV(t, "title,files_path\nBeaker,"+attDir+"\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(client.uploaded) != 2 {
		t.Fatalf("uploaded = %v, want two files", client.uploaded)
	}
	for _, up := range client.uploaded {
		if !strings.HasPrefix(up, "1/") {
			t.Errorf("upload %q not bound to created record 1", up)
		}
	}
}

func TestEngineRun_BadAttachmentDirFailsRow(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())
	eng.SetFailedRowsReport(false)

	path := writeTestCSV(t, "title,files_path\nBeaker,/no/such/dir\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("result = %+v, want the row failed", res)
	}
	if !strings.Contains(res.FailedRows[0].Reason, "not a directory") {
		t.Errorf("reason = %q", res.FailedRows[0].Reason)
	}
}

// ============================================================
// Patch runs
// ============================================================

func existingItem(id int, title string) elabftw.Item {
	return elabftw.Item{
		ID:    id,
		Title: title,
		Metadata: elabftw.Metadata{
			ExtraFields: map[string]elabftw.ExtraField{
				"Host": {Type: "select", Value: "Mouse", Options: []string{"Mouse", "Rabbit"}},
			},
		},
		Raw: map[string]any{"id": float64(id), "title": title},
	}
}

func TestEngineRun_Patch(t *testing.T) {
	client := &fakeClient{
		category: testCategory(),
		items:    []elabftw.Item{existingItem(42, "Old Title")},
	}
	eng := NewEngine(client, testLogger())

	path := writeTestCSV(t, "id,title,Host\n42,New Title,rabbit\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModePatch, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("result = %+v", res)
	}

	if len(client.patched) != 1 {
		t.Fatalf("patched = %+v, want one call", client.patched)
	}
	call := client.patched[0]
	if call.id != 42 {
		t.Errorf("patched id = %d, want 42", call.id)
	}
	if call.patch.Title != "New Title" {
		t.Errorf("patched title = %q", call.patch.Title)
	}
	if call.patch.Metadata == nil {
		t.Fatal("patch carries no metadata despite a declared extra")
	}
	// The record's own metadata is the merge base, so the select value
	// adopts the declared option's spelling.
	if got := call.patch.Metadata.ExtraFields["Host"].Value; got != "Rabbit" {
		t.Errorf("Host = %v, want Rabbit", got)
	}
}

func TestEngineRun_PatchMissingID(t *testing.T) {
	client := &fakeClient{
		category: testCategory(),
		items:    []elabftw.Item{existingItem(42, "Existing")},
	}
	eng := NewEngine(client, testLogger())
	eng.SetFailedRowsReport(false)

	path := writeTestCSV(t, "id,title\n42,Updated\n99,Phantom\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModePatch, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 1 succeeded 1 failed", res)
	}
	if !strings.Contains(res.FailedRows[0].Reason, "not found") {
		t.Errorf("reason = %q, want not found", res.FailedRows[0].Reason)
	}
	if len(client.patched) != 1 || client.patched[0].id != 42 {
		t.Errorf("patched = %+v", client.patched)
	}
}

func TestEngineRun_PatchExperimentsListsExperiments(t *testing.T) {
	client := &fakeClient{
		experiments: []elabftw.Item{existingItem(5, "Exp")},
	}
	eng := NewEngine(client, testLogger())

	experiments := Profile{
		Info: ProfileInfo{Key: "experiments", Label: "Experiments", Kind: elabftw.KindExperiment},
		Fields: []FieldSpec{
			{Name: "id", PatchRequired: true, Normalizer: NormalizeID},
			{Name: "title", CreateRequired: true},
		},
	}

	path := writeTestCSV(t, "id,title\n5,Renamed\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: experiments, Mode: ModePatch, FilePath: path,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("result = %+v", res)
	}
	// Experiments have no category, so the category endpoint is never hit.
	if client.categoryCalls != 0 {
		t.Errorf("categoryCalls = %d, want 0", client.categoryCalls)
	}
}

func TestEngineRun_CreateExperimentsDiscardsCategory(t *testing.T) {
	client := &fakeClient{}
	eng := NewEngine(client, testLogger())

	experiments := Profile{
		Info: ProfileInfo{Key: "experiments", Label: "Experiments", Kind: elabftw.KindExperiment},
		Fields: []FieldSpec{
			{Name: "id", PatchRequired: true, Normalizer: NormalizeID},
			{Name: "title", CreateRequired: true},
		},
	}

	// The form always submits a category; it must not reach the payload.
	path := writeTestCSV(t, "title\nGrowth curve\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: experiments, Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(client.created) != 1 || client.created[0].Category != 0 {
		t.Errorf("created = %+v, want one record with no category", client.created)
	}
	if client.categoryCalls != 0 {
		t.Errorf("categoryCalls = %d, want 0", client.categoryCalls)
	}
}

// ============================================================
// Aborts before the first API call
// ============================================================

func TestEngineRun_SchemaErrorAborts(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())

	path := writeTestCSV(t, "tags,color\nglass,blue\n")
	_, err := eng.Run(context.Background(), RunRequest{
		Profile:    testProfile(),
		Mode:       ModeCreate,
		FilePath:   path,
		FileName:   "input.csv",
		CategoryID: 7,
	})

	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Run() error = %T (%v), want *SchemaError", err, err)
	}
	if len(schemaErr.Missing) != 1 || schemaErr.Missing[0] != "title" {
		t.Errorf("Missing = %v, want [title]", schemaErr.Missing)
	}
	if schemaErr.FileName != "input.csv" {
		t.Errorf("FileName = %q, want input.csv", schemaErr.FileName)
	}
	// Nothing was created and the remote side was never resolved.
	if len(client.created) != 0 || client.categoryCalls != 0 {
		t.Error("server was contacted despite a schema error")
	}
}

func TestEngineRun_UnreadableFileAborts(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())

	_, err := eng.Run(context.Background(), RunRequest{
		Profile:    testProfile(),
		Mode:       ModeCreate,
		FilePath:   filepath.Join(t.TempDir(), "absent.csv"),
		CategoryID: 7,
	})
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Run() error = %T, want *FormatError", err)
	}
	if len(client.created) != 0 {
		t.Error("records created from an unreadable file")
	}
}

func TestEngineRun_NoCategorySelected(t *testing.T) {
	eng := NewEngine(&fakeClient{}, testLogger())

	path := writeTestCSV(t, "title\nBeaker\n")
	_, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path,
	})
	if err == nil || !strings.Contains(err.Error(), "no category selected") {
		t.Errorf("Run() error = %v, want no category selected", err)
	}
}

func TestEngineRun_Cancelled(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := writeTestCSV(t, "title\nBeaker\n")
	res, err := eng.Run(ctx, RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("Run() result = nil, partial outcome lost")
	}
	if len(client.created) != 0 {
		t.Errorf("created = %+v, want none after cancellation", client.created)
	}
}

func TestEngineRun_FileTooLarge(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())
	eng.SetMaxFileSize(4)

	path := writeTestCSV(t, "title\nBeaker\n")
	_, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if err == nil || !strings.Contains(err.Error(), "file too large") {
		t.Errorf("Run() error = %v, want file too large", err)
	}
}

// ============================================================
// Reports and progress
// ============================================================

func TestEngineRun_FailedRowsReport(t *testing.T) {
	client := &fakeClient{
		category: testCategory(),
		failTitles: map[string]error{
			"Broken": &elabftw.APIError{StatusCode: 400, Message: "rejected"},
		},
	}
	eng := NewEngine(client, testLogger())

	path := writeTestCSV(t, "title\nGood\nBroken\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.ReportPath == "" {
		t.Fatal("ReportPath empty, want a failed-rows report")
	}
	data, err := os.ReadFile(res.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "rejected") || !strings.Contains(string(data), "Broken") {
		t.Errorf("report content = %q", data)
	}
}

func TestEngineRun_ReportDisabled(t *testing.T) {
	client := &fakeClient{
		category:   testCategory(),
		failTitles: map[string]error{"Broken": errors.New("boom")},
	}
	eng := NewEngine(client, testLogger())
	eng.SetFailedRowsReport(false)

	path := writeTestCSV(t, "title\nBroken\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ReportPath != "" {
		t.Errorf("ReportPath = %q, want empty when disabled", res.ReportPath)
	}
}

func TestEngineRun_ProgressPhases(t *testing.T) {
	client := &fakeClient{category: testCategory()}
	eng := NewEngine(client, testLogger())

	var updates []RunProgress
	path := writeTestCSV(t, "title\nBeaker\nFlask\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile:    testProfile(),
		Mode:       ModeCreate,
		FilePath:   path,
		CategoryID: 7,
		Progress:   func(p RunProgress) { updates = append(updates, p) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(updates) == 0 {
		t.Fatal("no progress updates emitted")
	}
	if updates[0].Phase != PhaseStarting {
		t.Errorf("first phase = %s, want starting", updates[0].Phase)
	}
	last := updates[len(updates)-1]
	if last.Phase != PhaseComplete {
		t.Errorf("last phase = %s, want complete", last.Phase)
	}
	if last.Succeeded != res.Succeeded || last.TotalRows != res.TotalRows {
		t.Errorf("final progress = %+v, result = %+v", last, res)
	}

	sawSyncing := false
	for _, u := range updates {
		if u.Phase == PhaseSyncing {
			sawSyncing = true
		}
	}
	if !sawSyncing {
		t.Error("syncing phase never reported")
	}
}

func TestEngineRun_MalformedTemplateDegrades(t *testing.T) {
	client := &fakeClient{
		category: &elabftw.Category{ID: 7, Title: "Broken", Metadata: "{not json"},
	}
	eng := NewEngine(client, testLogger())

	path := writeTestCSV(t, "title,color\nBeaker,blue\n")
	res, err := eng.Run(context.Background(), RunRequest{
		Profile: testProfile(), Mode: ModeCreate, FilePath: path, CategoryID: 7,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("result = %+v", res)
	}
	// Without a template the extra still lands, typed by inference.
	md := client.created[0].Metadata
	if md == nil || md.ExtraFields["color"].Value != "blue" {
		t.Errorf("metadata = %+v, want inferred color field", md)
	}
}
