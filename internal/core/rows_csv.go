package core

// rows_csv.go reads CSV files with the defensive parsing real lab
// exports need: BOM stripping, UTF-8 repair, legacy Windows encodings,
// legacy line endings and delimiter sniffing.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// sniffSampleSize is how much of the file the delimiter and encoding
// sniffers inspect.
const sniffSampleSize = 8192

// delimiterCandidates, in preference order for ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

type csvRows struct {
	name    string
	headers []string
	r       *csv.Reader
	line    int
}

func newCSVRows(name string, r io.Reader) (RowReader, error) {
	br := bufio.NewReaderSize(r, sniffSampleSize*2)
	sample, _ := br.Peek(sniffSampleSize)
	sample = bytes.TrimPrefix(sample, []byte{0xEF, 0xBB, 0xBF})

	var stream io.Reader = br
	if !utf8.Valid(sample) {
		// Exports from older Windows tools arrive as Windows-1252,
		// a superset of Latin-1. Delimiters are ASCII either way, so
		// the raw sample still sniffs correctly below.
		stream = transform.NewReader(br, charmap.Windows1252.NewDecoder())
	}

	cr := csv.NewReader(NewStreamingUTF8Sanitizer(NewLineEndingNormalizer(NewBOMSkippingReader(stream))))
	cr.Comma = sniffDelimiter(sample)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &FormatError{FileName: name, Err: errors.New("empty file")}
		}
		return nil, &FormatError{FileName: name, Err: fmt.Errorf("parse csv: %w", err)}
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = CleanCell(h)
	}

	return ensureFirstRow(&csvRows{name: name, headers: headers, r: cr}, name)
}

func (c *csvRows) Headers() []string { return c.headers }

func (c *csvRows) Next() (Row, error) {
	for {
		rec, err := c.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Row{}, io.EOF
			}
			return Row{}, &FormatError{FileName: c.name, Err: fmt.Errorf("parse csv: %w", err)}
		}
		c.line++
		if allEmptyCells(rec) {
			continue
		}
		return Row{Line: c.line, Cells: rec}, nil
	}
}

func (c *csvRows) Close() error { return nil }

// sniffDelimiter picks the candidate that yields the widest header in
// the sample. A header narrower than two columns falls back to ";".
func sniffDelimiter(sample []byte) rune {
	best := ';'
	bestFields := 1

	for _, cand := range delimiterCandidates {
		cr := csv.NewReader(bytes.NewReader(sample))
		cr.Comma = cand
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true

		rec, err := cr.Read()
		if err != nil {
			continue
		}
		if len(rec) > bestFields {
			bestFields = len(rec)
			best = cand
		}
	}
	return best
}
