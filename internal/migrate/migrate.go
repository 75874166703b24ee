package migrate

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// importHeaders are the columns of the written table. The first three
// are fixed fields of an import; the rest fold into extra fields of
// each created record.
var importHeaders = []string{"title", "tags", "body", "labfolder_id", "project", "created"}

// Migrator walks a labfolder account and writes its entries as an
// import table.
type Migrator struct {
	client *Client
	log    *slog.Logger
}

// NewMigrator wires a migrator to a labfolder client.
func NewMigrator(client *Client, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{client: client, log: log}
}

// Result sums up a finished migration.
type Result struct {
	Projects int
	Entries  int
	Path     string
}

// Run logs in, walks every project and entry, and writes one table row
// per entry to outPath (a dated name in the working directory when
// empty). The table loads through a regular import; project name,
// creation date and the labfolder id travel as extra fields.
func (m *Migrator) Run(ctx context.Context, email, password, outPath string) (*Result, error) {
	if err := m.client.Login(ctx, email, password); err != nil {
		return nil, err
	}
	defer func() {
		if err := m.client.Logout(ctx); err != nil {
			m.log.Warn("labfolder logout failed", "error", err)
		}
	}()

	projects, err := m.client.Projects(ctx)
	if err != nil {
		return nil, err
	}
	projectTitles := make(map[string]string, len(projects))
	for _, p := range projects {
		projectTitles[p.ID] = p.Title
	}
	m.log.Info("projects fetched", "count", len(projects))

	entries, err := m.client.Entries(ctx)
	if err != nil {
		return nil, err
	}
	m.log.Info("entries fetched", "count", len(entries))
	if len(entries) == 0 {
		return nil, fmt.Errorf("labfolder: account has no entries to migrate")
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows = append(rows, m.entryRow(ctx, entry, projectTitles))
	}

	path, err := writeImportTable(outPath, rows)
	if err != nil {
		return nil, err
	}
	m.log.Info("import table written", "path", path, "rows", len(rows))

	return &Result{Projects: len(projects), Entries: len(entries), Path: path}, nil
}

// entryRow renders one entry as a table row. The body is the entry's
// TEXT elements concatenated in order; an element that cannot be
// fetched is skipped with a warning rather than sinking the migration.
func (m *Migrator) entryRow(ctx context.Context, entry Entry, projectTitles map[string]string) []string {
	var body strings.Builder
	for _, el := range entry.Elements {
		if !strings.EqualFold(el.Type, "TEXT") {
			continue
		}
		content, err := m.client.TextContent(ctx, el.ID)
		if err != nil {
			m.log.Warn("text element skipped",
				"entry", entry.ID,
				"element", el.ID,
				"error", err,
			)
			continue
		}
		body.WriteString(content)
	}

	return []string{
		entry.Title,
		strings.Join(entry.Tags, "|"),
		body.String(),
		entry.ID,
		projectTitles[entry.ProjectID],
		entry.CreationDate,
	}
}

// writeImportTable writes rows as a CSV import table and returns its
// path.
func writeImportTable(path string, rows [][]string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("labfolder-migration-%s.csv", time.Now().Format("2006-01-02"))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create import table: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(importHeaders); err != nil {
		f.Close()
		return "", fmt.Errorf("write import table: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return "", fmt.Errorf("write import table: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("write import table: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write import table: %w", err)
	}
	return path, nil
}
