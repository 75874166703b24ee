package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/elabsync/elabsync/internal/elabftw"
)

// Mode selects what a sync run does with each record.
type Mode string

const (
	// ModeCreate creates a new record for every row.
	ModeCreate Mode = "create"
	// ModePatch updates existing records matched by their id column.
	ModePatch Mode = "patch"
)

// FieldSpec declares one fixed column a profile understands. Fixed
// columns map onto first-class record attributes (title, tags, body);
// every other column becomes an extra field.
type FieldSpec struct {
	Name           string              // Canonical field name: "title"
	Aliases        []string            // Additional accepted header spellings
	CreateRequired bool                // Column must exist when creating records
	PatchRequired  bool                // Column must exist when patching records
	Normalizer     func(string) string // Optional cell transformation
}

// requiredFor reports whether the column must be present in the header
// for the given mode.
func (f FieldSpec) requiredFor(mode Mode) bool {
	if mode == ModePatch {
		return f.PatchRequired
	}
	return f.CreateRequired
}

// ProfileInfo contains display information about a profile.
type ProfileInfo struct {
	Key   string       // Unique identifier: "resources"
	Label string       // Display name: "Resources"
	Kind  elabftw.Kind // Record family the profile syncs
}

// Profile contains everything needed to sync one record family.
type Profile struct {
	Info   ProfileInfo
	Fields []FieldSpec

	// NeedsCategory marks profiles whose records live inside a
	// category that must be chosen before a run.
	NeedsCategory bool
}

// fieldByCanon returns the fixed field whose name or alias
// canonicalizes to canon.
func (p Profile) fieldByCanon(canon string) (FieldSpec, bool) {
	for _, f := range p.Fields {
		if Canonicalize(f.Name) == canon {
			return f, true
		}
		for _, alias := range f.Aliases {
			if Canonicalize(alias) == canon {
				return f, true
			}
		}
	}
	return FieldSpec{}, false
}

// Row is one data row read from the input file. Line is the 1-based
// data row number; the header row is not counted.
type Row struct {
	Line  int
	Cells []string
}

// ExtraValue is one unmapped column carried into a record's metadata.
type ExtraValue struct {
	Name  string // Original header spelling
	Value string
	Type  string // Inferred wire type: "number", "checkbox" or "text"
}

// Record is the mapped form of one row, ready for the sync engine.
// Building a Record never touches the network.
type Record struct {
	Line     int
	ID       int // Target record id in patch mode, 0 when absent
	Title    string
	Tags     []string
	Body     string
	FilesDir string       // Directory whose files get attached after create
	Extras   []ExtraValue // In column order
}

// RunPhase indicates the current stage of a sync run.
type RunPhase string

const (
	PhaseStarting  RunPhase = "starting"
	PhaseReading   RunPhase = "reading"
	PhaseSyncing   RunPhase = "syncing"
	PhaseComplete  RunPhase = "complete"
	PhaseFailed    RunPhase = "failed"
	PhaseCancelled RunPhase = "cancelled"
)

// RunProgress represents the current state of a sync run.
type RunProgress struct {
	RunID      string
	ProfileKey string
	Mode       Mode
	Phase      RunPhase
	FileName   string
	TotalRows  int // 0 while the total is unknown (rows stream lazily)
	CurrentRow int
	Succeeded  int
	Skipped    int
	Failed     int
	Error      string // Non-empty if Phase is PhaseFailed
}

// FailedRow records one row the server rejected.
type FailedRow struct {
	Line   int
	Reason string
	Data   []string
}

// RunResult contains the final result of a sync run. Succeeded, Skipped
// and Failed always sum to TotalRows.
type RunResult struct {
	RunID      string
	ProfileKey string
	Mode       Mode
	FileName   string
	TotalRows  int
	Succeeded  int
	Skipped    int
	Failed     int
	FailedRows []FailedRow
	ReportPath string // Failed-rows CSV, empty when none was written
	Duration   time.Duration
	Error      string // Non-empty if the run aborted before syncing
}

// Flash summarizes a finished run as a one-line status message:
//
//	12 succeeded, 2 failed: row 5 duplicate title, row 9 invalid field type
//
// At most maxErrors failures are listed; the remainder is elided with
// "and N more". maxErrors <= 0 lists every failure.
func (r RunResult) Flash(maxErrors int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded, ", r.Succeeded)
	if r.Skipped > 0 {
		fmt.Fprintf(&b, "%d skipped, ", r.Skipped)
	}
	fmt.Fprintf(&b, "%d failed", r.Failed)
	if len(r.FailedRows) == 0 {
		return b.String()
	}

	shown := r.FailedRows
	elided := 0
	if maxErrors > 0 && len(shown) > maxErrors {
		elided = len(shown) - maxErrors
		shown = shown[:maxErrors]
	}

	b.WriteString(": ")
	for i, fr := range shown {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "row %d %s", fr.Line, fr.Reason)
	}
	if elided > 0 {
		fmt.Fprintf(&b, ", and %d more", elided)
	}
	return b.String()
}

// ProgressCallback is called after every processed row.
type ProgressCallback func(RunProgress)
