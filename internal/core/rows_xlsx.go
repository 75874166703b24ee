package core

// rows_xlsx.go reads XLSX workbooks through excelize. Only the first
// sheet is read, and rows stream through the iterator so a large
// workbook is never materialized twice.

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

type xlsxRows struct {
	name    string
	f       *excelize.File
	iter    *excelize.Rows
	headers []string
	line    int
}

func newXLSXRows(name string, r io.Reader) (RowReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FormatError{FileName: name, Err: fmt.Errorf("read xlsx: %w", err)}
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, &FormatError{FileName: name, Err: errors.New("read xlsx: workbook has no sheets")}
	}

	iter, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, &FormatError{FileName: name, Err: fmt.Errorf("read xlsx: %w", err)}
	}

	if !iter.Next() {
		iter.Close()
		f.Close()
		return nil, &FormatError{FileName: name, Err: errors.New("empty file")}
	}
	header, err := iter.Columns()
	if err != nil {
		iter.Close()
		f.Close()
		return nil, &FormatError{FileName: name, Err: fmt.Errorf("read xlsx: %w", err)}
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = CleanCell(h)
	}

	return ensureFirstRow(&xlsxRows{name: name, f: f, iter: iter, headers: headers}, name)
}

func (x *xlsxRows) Headers() []string { return x.headers }

func (x *xlsxRows) Next() (Row, error) {
	for x.iter.Next() {
		cells, err := x.iter.Columns()
		if err != nil {
			return Row{}, &FormatError{FileName: x.name, Err: fmt.Errorf("read xlsx: %w", err)}
		}
		x.line++
		if allEmptyCells(cells) {
			continue
		}
		return Row{Line: x.line, Cells: cells}, nil
	}
	return Row{}, io.EOF
}

func (x *xlsxRows) Close() error {
	x.iter.Close()
	return x.f.Close()
}
