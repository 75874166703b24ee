package core

// rows.go turns an uploaded file into an ordered sequence of data rows.
//
// Rows are read lazily so large files never live in memory whole, but
// the constructors always read one row ahead: a file that cannot be
// parsed, or that holds no data at all, fails before a run makes its
// first API call.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RowReader yields the data rows of a tabular file in file order.
// Next returns io.EOF after the last row.
type RowReader interface {
	// Headers returns the cleaned header row.
	Headers() []string
	// Next returns the next non-empty data row.
	Next() (Row, error)
	Close() error
}

// SupportedExtension reports whether name carries one of the accepted
// table file extensions.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}

// NewRowReader wraps an already-open file in the reader matching its
// extension. maxSize <= 0 disables the size check. The returned reader
// does not close r.
func NewRowReader(name string, r io.Reader, size, maxSize int64) (RowReader, error) {
	if maxSize > 0 && size > maxSize {
		return nil, &FormatError{
			FileName: name,
			Err:      fmt.Errorf("file too large: %d bytes (limit %d)", size, maxSize),
		}
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return newCSVRows(name, r)
	case ".xlsx", ".xls":
		// Legacy .xls names are routed here too: spreadsheets exported
		// by modern tools usually carry xlsx content regardless of the
		// extension, and genuinely old files fail with a clear error.
		return newXLSXRows(name, r)
	default:
		return nil, &FormatError{
			FileName: name,
			Err:      fmt.Errorf("unsupported file type %q", filepath.Ext(name)),
		}
	}
}

// OpenRows opens a tabular file from disk.
func OpenRows(path string, maxSize int64) (RowReader, error) {
	name := filepath.Base(path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, &FormatError{FileName: name, Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{FileName: name, Err: err}
	}

	rr, err := NewRowReader(name, f, info.Size(), maxSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileRows{RowReader: rr, f: f}, nil
}

// fileRows couples a reader to the file it reads from.
type fileRows struct {
	RowReader
	f *os.File
}

func (fr *fileRows) Close() error {
	err := fr.RowReader.Close()
	if cerr := fr.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ensureFirstRow reads one data row ahead so files without any data
// fail at open time.
func ensureFirstRow(rr RowReader, name string) (RowReader, error) {
	first, err := rr.Next()
	if err != nil {
		rr.Close()
		if errors.Is(err, io.EOF) {
			return nil, &FormatError{FileName: name, Err: errors.New("no data rows")}
		}
		return nil, err
	}
	return &peekedRows{RowReader: rr, first: &first}, nil
}

// peekedRows replays the row ensureFirstRow consumed.
type peekedRows struct {
	RowReader
	first *Row
}

func (p *peekedRows) Next() (Row, error) {
	if p.first != nil {
		row := *p.first
		p.first = nil
		return row, nil
	}
	return p.RowReader.Next()
}

// allEmptyCells reports whether every cell in the row is blank.
func allEmptyCells(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
