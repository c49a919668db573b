// Package sheet reads telegram rows from spreadsheets.
//
// Every row after the header holds at least four text cells: reporting
// center, SHR text, DEP text and ARR text. Shorter rows are skipped.
package sheet

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"shr_parser/internal/telegram"
)

// MinCells is the number of cells a row needs to become a telegram.
const MinCells = 4

// ErrUnsupportedFormat is returned for file extensions other than .xlsx, .csv and .jsonl.
var ErrUnsupportedFormat = errors.New("unsupported telegram file format")

// Batch is the result of reading one file.
type Batch struct {
	FileName    string
	Telegrams   []*telegram.Telegram
	SkippedRows int
}

// Read dispatches on the file extension of name.
func Read(name string, r io.Reader) (*Batch, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(name, r)
	case ".csv":
		return ReadCSV(name, r)
	case ".jsonl", ".ndjson":
		return ReadJSONL(name, r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// ReadXLSX reads the first worksheet of an XLSX workbook.
func ReadXLSX(name string, r io.Reader) (*Batch, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Batch{FileName: name}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRows(name, rows), nil
}

// ReadCSV reads comma-separated rows. Rows may have differing cell counts.
func ReadCSV(name string, r io.Reader) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", name, err)
	}
	return fromRows(name, rows), nil
}

// ReadJSONL reads one telegram object per line; lines without SHR text are skipped.
func ReadJSONL(name string, r io.Reader) (*Batch, error) {
	b := &Batch{FileName: name}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t, err := telegram.Decode([]byte(line))
		if err != nil || t == nil {
			b.SkippedRows++
			continue
		}
		if t.FileName == "" {
			t.FileName = name
		}
		b.Telegrams = append(b.Telegrams, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl %s: %w", name, err)
	}
	return b, nil
}

// fromRows skips the header row and any row with fewer than MinCells cells.
func fromRows(name string, rows [][]string) *Batch {
	b := &Batch{FileName: name}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if countCells(row) < MinCells {
			b.SkippedRows++
			continue
		}
		b.Telegrams = append(b.Telegrams, telegram.New(row[0], row[1], row[2], row[3], name))
	}
	return b
}

// countCells returns the row length without trailing empty cells.
func countCells(row []string) int {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return n
}
