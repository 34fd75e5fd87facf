package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"almazara/internal/trace"
)

// Format names a document encoding.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Layout selects the PDF page structure.
type Layout string

const (
	// LayoutSummary is a single page with the four main sections.
	LayoutSummary Layout = "summary"
	// LayoutDetailed is a cover page followed by one page per delivery slip.
	LayoutDetailed Layout = "detailed"
)

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPDF, FormatXLSX, FormatCSV, FormatJSON:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("render: unknown format %q", s)
	}
}

// ParseLayout parses a layout name. Empty selects the summary.
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case LayoutSummary, LayoutDetailed:
		return l, nil
	case "":
		return LayoutSummary, nil
	default:
		return "", fmt.Errorf("render: unknown layout %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/json"
	}
}

// Extension returns the file extension of f including the dot.
func (f Format) Extension() string {
	if f == "" {
		return ".json"
	}
	return "." + string(f)
}

// Write renders report to w in format f. Layout only affects PDF output.
func Write(w io.Writer, report trace.Report, f Format, layout Layout) error {
	switch f {
	case FormatPDF:
		return PDF(w, report, layout)
	case FormatXLSX:
		return XLSX(w, report)
	case FormatCSV:
		return CSV(w, report)
	case FormatJSON, "":
		return JSON(w, report)
	default:
		return fmt.Errorf("render: unknown format %q", f)
	}
}

// JSON writes the report and its view model as indented JSON.
func JSON(w io.Writer, report trace.Report) error {
	doc := struct {
		Report trace.Report `json:"report"`
		View   View         `json:"view"`
	}{Report: report, View: BuildView(report)}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("render json: %w", err)
	}
	return nil
}

// FileName returns a download name for the report in format f.
func FileName(report trace.Report, f Format) string {
	id := report.Start.ID
	if id == "" {
		id = report.Query
	}
	r := strings.NewReplacer("/", "-", "\\", "-", " ", "_")
	return "trace_" + r.Replace(id) + f.Extension()
}
