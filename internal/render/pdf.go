package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"

	"almazara/internal/trace"
)

const (
	pageMargin     = 15.0
	lineHeight     = 6.0
	summaryMaxRows = 8
)

// PDF writes the report as a PDF document in the given layout.
func PDF(w io.Writer, report trace.Report, layout Layout) error {
	view := BuildView(report)
	doc := newPDFDoc(view)
	switch layout {
	case LayoutDetailed:
		doc.detailed(report, view)
	default:
		doc.summary(view)
	}
	if err := doc.pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

type pdfDoc struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	width float64
}

func newPDFDoc(view View) *pdfDoc {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(view.Title, true)
	pdf.SetCreator("almazara", true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pageW, _ := pdf.GetPageSize()
	return &pdfDoc{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), width: pageW - 2*pageMargin}
}

// summary renders origin, production, nurse and destination on one page.
func (d *pdfDoc) summary(view View) {
	d.pdf.AddPage()
	d.header(view)
	origin, _ := view.Section(SectionOrigin)
	d.section(origin, summaryMaxRows)
	d.section(d.productionBlock(view), summaryMaxRows)
	nurse, _ := view.Section(SectionNurse)
	d.section(nurse, summaryMaxRows)
	if sale, ok := view.Section(SectionDirectSale); ok {
		d.section(sale, summaryMaxRows)
	} else {
		dest, _ := view.Section(SectionDestination)
		d.section(dest, summaryMaxRows)
	}
	d.notes(view.Notes)
}

// productionBlock merges milling, production and cellar into one block.
func (d *pdfDoc) productionBlock(view View) Section {
	block := newSection(SectionProduction, "Production")
	filled := false
	for _, key := range []SectionKey{SectionMilling, SectionProduction, SectionCellar} {
		s, ok := view.Section(key)
		if !ok || s.Empty() {
			continue
		}
		filled = true
		block.Fields = append(block.Fields, s.Fields...)
		block.Tables = append(block.Tables, s.Tables...)
	}
	if !filled {
		block.markEmpty(StateNoData)
	}
	return block
}

// detailed renders a cover page, one page per delivery slip and the full
// sections.
func (d *pdfDoc) detailed(report trace.Report, view View) {
	d.pdf.AddPage()
	d.header(view)
	d.heading("Contents")
	d.setBody()
	for _, s := range view.Sections {
		status := "filled"
		if s.Empty() {
			status = s.EmptyText
		}
		d.pdf.CellFormat(d.width/2, lineHeight, d.tr(s.Title), "", 0, "L", false, 0, "")
		d.pdf.CellFormat(d.width/2, lineHeight, d.tr(status), "", 1, "L", false, 0, "")
	}
	d.notes(view.Notes)

	if len(report.Origin.Slips) == 0 {
		d.pdf.AddPage()
		origin, _ := view.Section(SectionOrigin)
		d.section(origin, 0)
	}
	for _, slip := range report.Origin.Slips {
		d.pdf.AddPage()
		d.heading("Delivery slip " + strconv.Itoa(slip.ID))
		producer := slip.ProducerID
		for _, p := range report.Origin.Producers {
			if p.Producer.ID == slip.ProducerID && p.Producer.Name != "" {
				producer = p.Producer.ID + " " + p.Producer.Name
			}
		}
		d.fields([]Field{
			{Label: "Date", Value: slip.Date.String()},
			{Label: "Producer", Value: producer},
			{Label: "Variety", Value: slip.Variety},
			{Label: "Net kg", Value: kg(slip.NetKg)},
			{Label: "Fat yield %", Value: num(slip.Analysis.FatYield)},
			{Label: "Acidity", Value: num(slip.Analysis.Acidity)},
			{Label: "Type", Value: string(slip.Type)},
			{Label: "Status", Value: string(slip.Status)},
			{Label: "Milling lot", Value: slip.MillingLotID},
		})
		for _, lot := range report.Milling.Constituents {
			if lot.ID != slip.MillingLotID {
				continue
			}
			d.table(Table{
				Title:   "Milling lot " + lot.ID,
				Headers: []string{"Date", "Hopper", "Input kg", "Actual oil kg", "Tank"},
				Rows: [][]string{{
					lot.Date.String(), strconv.Itoa(lot.HopperID), kg(lot.InputKg), kg(lot.ActualOilKg), strconv.Itoa(lot.TankID),
				}},
			}, 0)
		}
	}
	for _, s := range view.Sections {
		if s.Key == SectionOrigin {
			continue
		}
		d.pdf.AddPage()
		d.section(s, 0)
	}
}

func (d *pdfDoc) header(view View) {
	d.pdf.SetFont("Helvetica", "B", 16)
	d.pdf.CellFormat(0, 10, d.tr(view.Title), "", 1, "L", false, 0, "")
	d.setBody()
	d.pdf.CellFormat(0, lineHeight, d.tr("Query: "+view.Query), "", 1, "L", false, 0, "")
	d.pdf.CellFormat(0, lineHeight, fmt.Sprintf("Snapshot version: %d", view.Version), "", 1, "L", false, 0, "")
	d.pdf.Ln(3)
}

func (d *pdfDoc) heading(text string) {
	d.pdf.SetFont("Helvetica", "B", 12)
	d.pdf.SetFillColor(217, 225, 242)
	d.pdf.CellFormat(0, 8, d.tr(text), "", 1, "L", true, 0, "")
	d.pdf.Ln(1)
}

func (d *pdfDoc) setBody() {
	d.pdf.SetFont("Helvetica", "", 9)
	d.pdf.SetTextColor(0, 0, 0)
}

// section renders s. maxRows limits table rows; zero renders every row.
func (d *pdfDoc) section(s Section, maxRows int) {
	d.heading(s.Title)
	if s.Empty() {
		d.pdf.SetFont("Helvetica", "I", 9)
		d.pdf.SetTextColor(128, 128, 128)
		d.pdf.CellFormat(0, lineHeight, d.tr(s.EmptyText), "1", 1, "C", false, 0, "")
		d.setBody()
		d.pdf.Ln(3)
		return
	}
	d.fields(s.Fields)
	for _, t := range s.Tables {
		d.table(t, maxRows)
	}
	d.pdf.Ln(3)
}

func (d *pdfDoc) fields(fields []Field) {
	d.setBody()
	labelW := d.width * 0.3
	for _, f := range fields {
		d.pdf.SetFont("Helvetica", "B", 9)
		d.pdf.CellFormat(labelW, lineHeight, d.tr(f.Label), "", 0, "L", false, 0, "")
		d.pdf.SetFont("Helvetica", "", 9)
		d.pdf.CellFormat(d.width-labelW, lineHeight, d.fit(f.Value, d.width-labelW), "", 1, "L", false, 0, "")
	}
}

func (d *pdfDoc) table(t Table, maxRows int) {
	if len(t.Headers) == 0 {
		return
	}
	colW := d.width / float64(len(t.Headers))
	d.pdf.SetFont("Helvetica", "B", 9)
	d.pdf.CellFormat(0, lineHeight, d.tr(t.Title), "", 1, "L", false, 0, "")
	d.pdf.SetFont("Helvetica", "B", 8)
	d.pdf.SetFillColor(240, 240, 240)
	for _, h := range t.Headers {
		d.pdf.CellFormat(colW, lineHeight, d.fit(h, colW), "1", 0, "C", true, 0, "")
	}
	d.pdf.Ln(-1)
	d.pdf.SetFont("Helvetica", "", 8)
	rows := t.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for _, r := range rows {
		for _, cell := range r {
			d.pdf.CellFormat(colW, lineHeight, d.fit(cell, colW), "1", 0, "L", false, 0, "")
		}
		d.pdf.Ln(-1)
	}
	if hidden := len(t.Rows) - len(rows); hidden > 0 {
		d.pdf.SetFont("Helvetica", "I", 8)
		d.pdf.CellFormat(0, lineHeight, fmt.Sprintf("... %d more rows", hidden), "", 1, "L", false, 0, "")
	}
	d.setBody()
}

func (d *pdfDoc) notes(notes []string) {
	if len(notes) == 0 {
		return
	}
	d.heading("Notes")
	d.pdf.SetFont("Helvetica", "", 8)
	for _, n := range notes {
		d.pdf.MultiCell(0, 5, d.tr(n), "", "L", false)
	}
	d.setBody()
}

// fit translates text and trims it to the cell width.
func (d *pdfDoc) fit(text string, width float64) string {
	out := d.tr(text)
	limit := width - 2
	if d.pdf.GetStringWidth(out) <= limit {
		return out
	}
	for len(out) > 0 && d.pdf.GetStringWidth(out+"...") > limit {
		out = out[:len(out)-1]
	}
	return out + "..."
}
