package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"almazara/internal/trace"
)

// CSV writes the view as flat rows: section, table, then cells. Fields use
// the table column "field".
func CSV(w io.Writer, report trace.Report) error {
	view := BuildView(report)
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"section", "table", "values"},
		{"report", "field", "Query", view.Query},
		{"report", "field", "Start", startLabel(view.Start)},
		{"report", "field", "Snapshot version", strconv.FormatUint(view.Version, 10)},
	}
	for _, s := range view.Sections {
		if s.Empty() {
			rows = append(rows, []string{s.Title, "empty", s.EmptyText})
			continue
		}
		for _, f := range s.Fields {
			rows = append(rows, []string{s.Title, "field", f.Label, f.Value})
		}
		for _, t := range s.Tables {
			rows = append(rows, append([]string{s.Title, t.Title}, t.Headers...))
			for _, r := range t.Rows {
				rows = append(rows, append([]string{s.Title, t.Title}, r...))
			}
		}
	}
	for _, n := range view.Notes {
		rows = append(rows, []string{"notes", "note", n})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("render csv: %w", err)
	}
	return nil
}
