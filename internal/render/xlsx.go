package render

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"almazara/internal/trace"
)

const summarySheet = "Summary"

// XLSX writes a workbook with a summary sheet, one sheet per section and a
// notes sheet.
func XLSX(w io.Writer, report trace.Report) error {
	f, err := Workbook(report)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("render xlsx: %w", err)
	}
	return nil
}

// Workbook builds the report workbook. Callers must close the returned file.
func Workbook(report trace.Report) (*excelize.File, error) {
	view := BuildView(report)
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	titleStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	emptyStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true, Color: "808080"}})

	sum := &sheetWriter{f: f, name: summarySheet, header: headerStyle}
	sum.title(view.Title, titleStyle)
	sum.pair("Query", view.Query)
	sum.pair("Start", startLabel(view.Start))
	sum.pair("Snapshot version", view.Version)
	sum.skip()
	sum.headers([]string{"Section", "Status"})
	for _, s := range view.Sections {
		status := "filled"
		if s.Empty() {
			status = s.EmptyText
		}
		sum.row([]string{s.Title, status})
	}
	sum.widths(24, 40)

	for _, s := range view.Sections {
		if _, err := f.NewSheet(s.Title); err != nil {
			f.Close()
			return nil, fmt.Errorf("render xlsx: sheet %s: %w", s.Title, err)
		}
		sw := &sheetWriter{f: f, name: s.Title, header: headerStyle}
		sw.title(s.Title, titleStyle)
		if s.Empty() {
			sw.styled(s.EmptyText, emptyStyle)
			continue
		}
		for _, field := range s.Fields {
			sw.pair(field.Label, field.Value)
		}
		maxCols := 2
		for _, t := range s.Tables {
			sw.skip()
			sw.styled(t.Title, titleStyle)
			sw.headers(t.Headers)
			for _, r := range t.Rows {
				sw.row(r)
			}
			if len(t.Headers) > maxCols {
				maxCols = len(t.Headers)
			}
		}
		widths := make([]float64, maxCols)
		for i := range widths {
			widths[i] = 16
		}
		sw.widths(widths...)
	}

	if _, err := f.NewSheet("Notes"); err != nil {
		f.Close()
		return nil, fmt.Errorf("render xlsx: notes sheet: %w", err)
	}
	notes := &sheetWriter{f: f, name: "Notes", header: headerStyle}
	notes.headers([]string{"Note"})
	if len(view.Notes) == 0 {
		notes.styled("No notes", emptyStyle)
	}
	for _, n := range view.Notes {
		notes.row([]string{n})
	}
	notes.widths(100)
	f.SetActiveSheet(0)
	return f, nil
}

// sheetWriter appends rows to one sheet.
type sheetWriter struct {
	f      *excelize.File
	name   string
	header int
	next   int
}

func (s *sheetWriter) cell(col int) string {
	name, _ := excelize.CoordinatesToCellName(col, s.next+1)
	return name
}

func (s *sheetWriter) title(text string, style int) {
	s.styled(text, style)
}

func (s *sheetWriter) styled(text string, style int) {
	cell := s.cell(1)
	s.f.SetCellValue(s.name, cell, text)
	s.f.SetCellStyle(s.name, cell, cell, style)
	s.next++
}

func (s *sheetWriter) pair(label string, value any) {
	s.f.SetCellValue(s.name, s.cell(1), label)
	s.f.SetCellValue(s.name, s.cell(2), value)
	s.next++
}

func (s *sheetWriter) headers(headers []string) {
	for i, h := range headers {
		cell := s.cell(i + 1)
		s.f.SetCellValue(s.name, cell, h)
		s.f.SetCellStyle(s.name, cell, cell, s.header)
	}
	s.next++
}

func (s *sheetWriter) row(values []string) {
	for i, v := range values {
		s.f.SetCellValue(s.name, s.cell(i+1), v)
	}
	s.next++
}

func (s *sheetWriter) skip() { s.next++ }

func (s *sheetWriter) widths(widths ...float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		s.f.SetColWidth(s.name, col, col, w)
	}
}
