package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// records yields the rows of one tabular export, header first. next returns
// io.EOF after the last row; a *rowError reports a row that could not be
// decoded and reading may continue.
type records interface {
	next() (record []string, line int, err error)
	Close() error
}

type rowError struct {
	err error
}

func (e *rowError) Error() string { return e.err.Error() }
func (e *rowError) Unwrap() error { return e.err }

// openRecords opens path with the reader its extension selects
func openRecords(path string) (records, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return openCSV(path)
	case ".xlsx", ".xlsm":
		return openXLSX(path)
	}
	return nil, ErrUnsupportedFormat
}

// supportedFormat reports whether openRecords can read path
func supportedFormat(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

type csvRecords struct {
	f  *os.File
	cr *csv.Reader
}

func openCSV(path string) (*csvRecords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &csvRecords{f: f, cr: cr}, nil
}

func (c *csvRecords) next() ([]string, int, error) {
	record, err := c.cr.Read()
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return nil, perr.Line, &rowError{err}
	}
	if err != nil {
		return nil, 0, err
	}
	line, _ := c.cr.FieldPos(0)
	return record, line, nil
}

func (c *csvRecords) Close() error {
	return c.f.Close()
}

// xlsxRecords reads the first worksheet of a workbook. Blank rows are
// skipped and data rows are padded or cut to the header width, since
// spreadsheet cells past the last value are simply absent.
type xlsxRecords struct {
	f     *excelize.File
	rows  *excelize.Rows
	line  int
	width int
}

func openXLSX(path string) (*xlsxRecords, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%s: workbook has no sheets", filepath.Base(path))
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &xlsxRecords{f: f, rows: rows, width: -1}, nil
}

func (x *xlsxRecords) next() ([]string, int, error) {
	for x.rows.Next() {
		x.line++
		cols, err := x.rows.Columns()
		if err != nil {
			return nil, x.line, &rowError{err}
		}
		if blank(cols) {
			continue
		}
		if x.width < 0 {
			x.width = len(cols)
			return cols, x.line, nil
		}
		record := make([]string, x.width)
		copy(record, cols)
		return record, x.line, nil
	}
	if err := x.rows.Error(); err != nil {
		return nil, x.line, err
	}
	return nil, x.line, io.EOF
}

func (x *xlsxRecords) Close() error {
	err := x.rows.Close()
	if cerr := x.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
