package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/xuri/excelize/v2"
)

// Sheet is one tab of a report. Row values keep their Go types so numbers
// stay numeric in the workbook.
type Sheet struct {
	Title  string
	Header []string
	Rows   [][]any
}

type Workbook struct {
	File *excelize.File
	Name string
}

var badSheetRe = regexp.MustCompile(`[\[\]:*?/\\]`)

// sheetTitle applies Excel's naming rules: no []:*?/\ and at most 31 runes.
func sheetTitle(s string) string {
	s = badSheetRe.ReplaceAllString(s, "-")
	if r := []rune(s); len(r) > 31 {
		s = string(r[:31])
	}
	if s == "" {
		s = "Sheet"
	}
	return s
}

func NewWorkbook(name string, sheets []Sheet) (*Workbook, error) {
	f := excelize.NewFile()
	const first = "Sheet1"
	if len(sheets) == 0 {
		sheets = []Sheet{{Title: "Empty"}}
	}
	money, _ := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00

	for i, s := range sheets {
		title := sheetTitle(s.Title)
		if i == 0 {
			if err := f.SetSheetName(first, title); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(title); err != nil {
			return nil, fmt.Errorf("new sheet %q: %w", title, err)
		}

		header := make([]any, len(s.Header))
		for i, h := range s.Header {
			header[i] = h
		}
		if err := f.SetSheetRow(title, "A1", &header); err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
		for r, row := range s.Rows {
			cell := fmt.Sprintf("A%d", r+2)
			if err := f.SetSheetRow(title, cell, &row); err != nil {
				return nil, fmt.Errorf("set row %s: %w", cell, err)
			}
			for c, v := range row {
				if _, ok := v.(float64); ok {
					ref := fmt.Sprintf("%s%d", columnName(c+1), r+2)
					_ = f.SetCellStyle(title, ref, ref, money)
				}
			}
		}
		if err := formatSheet(f, title); err != nil {
			return nil, fmt.Errorf("format %q: %w", title, err)
		}
	}
	return &Workbook{File: f, Name: sanitizeFileName(name)}, nil
}

func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	return w.File.WriteTo(out)
}

// SaveIn writes the workbook under dir and returns its path.
func (w *Workbook) SaveIn(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, w.Name)
	return path, w.File.SaveAs(path)
}

func (w *Workbook) Close() error { return w.File.Close() }
