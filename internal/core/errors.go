package core

// errors.go defines the typed errors the sync pipeline reports.
//
// The pipeline distinguishes file-level problems, which abort a run
// before anything is sent to the server, from row-level problems, which
// mark a single record failed while the run continues:
//
//   - FormatError, SchemaError: file-level, raised while reading the
//     input, always before the first API call
//   - RemoteError: row-level, wraps a server rejection of one record
//   - ExportError: an export produced nothing; shown as a flash message
//     rather than failing the request

import (
	"fmt"
	"strings"
)

// FormatError reports a file that could not be read as tabular data:
// an unsupported type, a broken encoding, or a file without a single
// data row.
type FormatError struct {
	FileName string
	Err      error
}

func (e *FormatError) Error() string {
	if e.FileName == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.FileName, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// SchemaError reports a readable file whose header is missing columns
// the selected profile and mode require.
type SchemaError struct {
	FileName string
	Missing  []string
}

func (e *SchemaError) Error() string {
	msg := "missing required columns: " + strings.Join(e.Missing, ", ")
	if e.FileName == "" {
		return msg
	}
	return e.FileName + ": " + msg
}

// RemoteError wraps a server-side failure for a single record. The run
// records it against the row and moves on.
type RemoteError struct {
	Line int // 1-based data row number
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Line, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ExportError reports an export that produced no output, most commonly
// because the category holds no records.
type ExportError struct {
	Reason string
}

func (e *ExportError) Error() string { return e.Reason }
