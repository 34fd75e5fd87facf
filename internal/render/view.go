// Package render turns lineage reports into display models and documents.
// Rendering never fails on partial reports: empty sections render an
// explicit empty state instead.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"almazara/internal/trace"
)

const (
	// NoDataText is shown for sections without records.
	NoDataText = "No data for this section"
	// InStorageText is shown when no oil has left the mill yet.
	InStorageText = "Oil remains in storage"
)

// SectionKey names a report section in fixed display order.
type SectionKey string

const (
	SectionOrigin      SectionKey = "origin"
	SectionDirectSale  SectionKey = "direct_sale"
	SectionMilling     SectionKey = "milling"
	SectionProduction  SectionKey = "production"
	SectionCellar      SectionKey = "cellar"
	SectionNurse       SectionKey = "nurse"
	SectionDestination SectionKey = "destination"
)

// EmptyState explains why a section has no content.
type EmptyState string

const (
	StateFilled    EmptyState = ""
	StateNoData    EmptyState = "no_data"
	StateInStorage EmptyState = "in_storage"
)

// Field is a labelled scalar.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Table is a titled grid of cells.
type Table struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Link is a navigable node of the lineage graph.
type Link struct {
	Label string    `json:"label"`
	Ref   trace.Ref `json:"ref"`
}

// Section is the display model of one report section.
type Section struct {
	Key       SectionKey `json:"key"`
	Title     string     `json:"title"`
	State     EmptyState `json:"state,omitempty"`
	EmptyText string     `json:"empty_text,omitempty"`
	Fields    []Field    `json:"fields"`
	Tables    []Table    `json:"tables"`
	Links     []Link     `json:"links"`
}

// Empty reports whether the section renders its empty state.
func (s Section) Empty() bool { return s.State != StateFilled }

// View is the display model of a whole report.
type View struct {
	Title    string    `json:"title"`
	Query    string    `json:"query"`
	Start    trace.Ref `json:"start"`
	Version  uint64    `json:"snapshot_version"`
	Sections []Section `json:"sections"`
	Notes    []string  `json:"notes"`
}

// Section returns the section with key.
func (v View) Section(key SectionKey) (Section, bool) {
	for _, s := range v.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// BuildView maps a report onto display sections. The direct sale section is
// included only for direct sale slips.
func BuildView(r trace.Report) View {
	v := View{
		Title:   fmt.Sprintf("Traceability report %s", startLabel(r.Start)),
		Query:   r.Query,
		Start:   r.Start,
		Version: r.SnapshotVersion,
		Notes:   make([]string, 0, len(r.Notes)),
	}
	v.Sections = append(v.Sections, originSection(r))
	if r.DirectSale.Active {
		v.Sections = append(v.Sections, directSaleSection(r.DirectSale))
	}
	v.Sections = append(v.Sections,
		millingSection(r.Milling),
		productionSection(r.Production),
		cellarSection(r.Cellar),
		nurseSection(r.Nurse),
		destinationSection(r.Destination),
	)
	for _, n := range r.Notes {
		v.Notes = append(v.Notes, fmt.Sprintf("[%s] %s: %s", n.Code, n.Section, n.Message))
	}
	return v
}

func startLabel(ref trace.Ref) string {
	kind := strings.ReplaceAll(string(ref.Kind), "_", " ")
	if ref.ID == "" {
		return kind
	}
	return kind + " " + ref.ID
}

func newSection(key SectionKey, title string) Section {
	return Section{Key: key, Title: title, Fields: []Field{}, Tables: []Table{}, Links: []Link{}}
}

func (s *Section) markEmpty(state EmptyState) {
	s.State = state
	s.EmptyText = NoDataText
	if state == StateInStorage {
		s.EmptyText = InStorageText
	}
}

func originSection(r trace.Report) Section {
	s := newSection(SectionOrigin, "Origin")
	if len(r.Origin.Producers) == 0 && len(r.Origin.Slips) == 0 {
		s.markEmpty(StateNoData)
		return s
	}
	producers := Table{Title: "Producers", Headers: []string{"Producer", "Name", "Slips", "Net kg"}}
	for _, p := range r.Origin.Producers {
		name := p.Producer.Name
		if !p.Registered {
			name = "(unregistered)"
		}
		producers.Rows = append(producers.Rows, []string{p.Producer.ID, name, joinInts(p.SlipIDs), kg(p.NetKg)})
	}
	slips := Table{Title: "Delivery slips", Headers: []string{"Slip", "Date", "Producer", "Variety", "Net kg", "Fat %", "Acidity", "Status"}}
	for _, d := range r.Origin.Slips {
		slips.Rows = append(slips.Rows, []string{
			strconv.Itoa(d.ID), d.Date.String(), d.ProducerID, d.Variety, kg(d.NetKg),
			num(d.Analysis.FatYield), num(d.Analysis.Acidity), string(d.Status),
		})
		s.Links = append(s.Links, Link{Label: "Slip " + strconv.Itoa(d.ID), Ref: trace.Ref{Kind: trace.KindDeliverySlip, ID: strconv.Itoa(d.ID)}})
	}
	s.Tables = append(s.Tables, producers, slips)
	return s
}

func directSaleSection(d trace.DirectSaleSection) Section {
	s := newSection(SectionDirectSale, "Direct sale")
	buyer := d.BuyerName
	if !d.Registered && buyer != "" {
		buyer += " (free text)"
	}
	s.Fields = append(s.Fields,
		Field{Label: "Slip", Value: strconv.Itoa(d.SlipID)},
		Field{Label: "Buyer", Value: buyer},
		Field{Label: "Date", Value: d.Date.String()},
		Field{Label: "Net kg", Value: kg(d.NetKg)},
	)
	return s
}

func millingSection(m trace.MillingSection) Section {
	s := newSection(SectionMilling, "Milling")
	if m.Lot == nil && len(m.Constituents) == 0 {
		s.markEmpty(StateNoData)
		return s
	}
	if m.Lot != nil {
		lot := *m.Lot
		label := lot.ID
		if m.Inferred {
			label += " (inferred, unverified)"
		}
		s.Fields = append(s.Fields,
			Field{Label: "Milling lot", Value: label},
			Field{Label: "Date", Value: lot.Date.String()},
			Field{Label: "Hopper", Value: strconv.Itoa(lot.HopperID)},
			Field{Label: "Input kg", Value: kg(lot.InputKg)},
			Field{Label: "Oil kg", Value: kg(lot.ActualOilKg)},
		)
	}
	table := Table{Title: "Milling lots", Headers: []string{"Lot", "Date", "Hopper", "Input kg", "Expected oil kg", "Actual oil kg", "Tank", "Variety"}}
	for _, lot := range m.Constituents {
		table.Rows = append(table.Rows, []string{
			lot.ID, lot.Date.String(), strconv.Itoa(lot.HopperID), kg(lot.InputKg),
			kg(lot.ExpectedOilKg), kg(lot.ActualOilKg), strconv.Itoa(lot.TankID), lot.Variety,
		})
		s.Links = append(s.Links, Link{Label: lot.ID, Ref: trace.Ref{Kind: trace.KindMillingLot, ID: lot.ID}})
	}
	if len(table.Rows) > 0 {
		s.Tables = append(s.Tables, table)
	}
	return s
}

func productionSection(p trace.ProductionSection) Section {
	s := newSection(SectionProduction, "Production")
	if p.Lot == nil && len(p.Candidates) == 0 {
		s.markEmpty(StateNoData)
		return s
	}
	if p.Lot != nil {
		lot := *p.Lot
		s.Fields = append(s.Fields,
			Field{Label: "Production lot", Value: lot.ID},
			Field{Label: "Date", Value: lot.Date.String()},
			Field{Label: "Olive kg", Value: kg(lot.OliveKg)},
			Field{Label: "Oil kg", Value: kg(lot.OilKg)},
			Field{Label: "Tank", Value: strconv.Itoa(lot.TankID)},
		)
		if lot.Notes != "" {
			s.Fields = append(s.Fields, Field{Label: "Notes", Value: lot.Notes})
		}
		s.Links = append(s.Links, Link{Label: lot.ID, Ref: trace.Ref{Kind: trace.KindProductionLot, ID: lot.ID}})
	}
	if len(p.Candidates) > 0 {
		table := Table{Title: "Candidate production lots", Headers: []string{"Lot", "Date", "Olive kg", "Oil kg", "Tank"}}
		for _, c := range p.Candidates {
			table.Rows = append(table.Rows, []string{c.ID, c.Date.String(), kg(c.OliveKg), kg(c.OilKg), strconv.Itoa(c.TankID)})
			if p.Lot == nil || p.Lot.ID != c.ID {
				s.Links = append(s.Links, Link{Label: c.ID, Ref: trace.Ref{Kind: trace.KindProductionLot, ID: c.ID}})
			}
		}
		s.Tables = append(s.Tables, table)
	}
	return s
}

func cellarSection(c trace.CellarSection) Section {
	s := newSection(SectionCellar, "Cellar")
	if c.TankID == 0 && c.Tank == nil {
		s.markEmpty(StateNoData)
		return s
	}
	s.Fields = append(s.Fields, Field{Label: "Tank", Value: strconv.Itoa(c.TankID)})
	if c.Tank == nil {
		s.Fields = append(s.Fields, Field{Label: "Status", Value: "not registered"})
		return s
	}
	t := *c.Tank
	s.Fields = append(s.Fields,
		Field{Label: "Capacity kg", Value: kg(t.CapacityKg)},
		Field{Label: "Current kg", Value: kg(t.CurrentKg)},
		Field{Label: "Fill", Value: num(c.FillPercent) + " %"},
		Field{Label: "Variety", Value: t.Variety},
		Field{Label: "Status", Value: string(t.Status)},
		Field{Label: "Cycle", Value: strconv.Itoa(t.Cycle)},
	)
	return s
}

func nurseSection(n trace.NurseSection) Section {
	s := newSection(SectionNurse, "Nurse tank")
	if len(n.Transfers) == 0 {
		s.markEmpty(StateNoData)
		return s
	}
	table := Table{Title: "Transfers", Headers: []string{"Batch", "Date", "From", "Kg"}}
	seen := map[string]bool{}
	for _, m := range n.Transfers {
		table.Rows = append(table.Rows, []string{m.BatchID, m.Date.String(), m.Source.String(), kg(m.Kg)})
		if m.BatchID != "" && !seen[m.BatchID] {
			seen[m.BatchID] = true
			s.Links = append(s.Links, Link{Label: "Batch " + m.BatchID, Ref: trace.Ref{Kind: trace.KindNurseEntry, ID: m.BatchID}})
		}
	}
	s.Tables = append(s.Tables, table)
	return s
}

func destinationSection(d trace.DestinationSection) Section {
	s := newSection(SectionDestination, "Destination")
	if d.Empty() {
		s.markEmpty(StateInStorage)
		return s
	}
	if len(d.PackagingLots) > 0 {
		table := Table{Title: "Packaging lots", Headers: []string{"Lot", "Date", "Type", "Format", "Units", "Kg", "Source"}}
		for _, p := range d.PackagingLots {
			table.Rows = append(table.Rows, []string{p.ID, p.Date.String(), string(p.Type), p.Format, strconv.Itoa(p.Units), kg(p.Kg), p.SourceInfo})
			s.Links = append(s.Links, Link{Label: p.ID, Ref: trace.Ref{Kind: trace.KindPackagingLot, ID: p.ID}})
		}
		s.Tables = append(s.Tables, table)
	}
	if len(d.BulkExits) > 0 {
		table := Table{Title: "Bulk exits", Headers: []string{"Date", "Tank", "Customer", "Kg", "Plate", "Delivery note"}}
		for _, e := range d.BulkExits {
			table.Rows = append(table.Rows, []string{
				e.Exit.Date.String(), strconv.Itoa(e.Exit.TankID), customerLabel(e.Exit.CustomerID, e.CustomerName),
				kg(e.Exit.Kg), e.Exit.Plate, e.Exit.DeliveryNote,
			})
		}
		s.Tables = append(s.Tables, table)
	}
	if len(d.Sales) > 0 {
		table := Table{Title: "Sales", Headers: []string{"Order", "Date", "Customer", "Packaging lot", "Units", "Price"}}
		for _, sale := range d.Sales {
			table.Rows = append(table.Rows, []string{
				sale.OrderID, sale.Date.String(), customerLabel(sale.CustomerID, sale.CustomerName),
				sale.PackagingLotID, strconv.Itoa(sale.Units), num(sale.Price),
			})
		}
		s.Tables = append(s.Tables, table)
	}
	return s
}

func customerLabel(id, name string) string {
	if name == "" {
		return id
	}
	return name
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

func kg(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
