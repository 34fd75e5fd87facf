// Package trace classifies free-text identifiers and reconstructs the lineage
// of mill products over an immutable snapshot. Every function in this package
// is pure: the same snapshot and query always yield the same report.
package trace

import "almazara/pkg/domain"

// Kind names the entity a lookup starts from.
type Kind string

const (
	KindProductionLot Kind = "production_lot"
	KindNurseEntry    Kind = "nurse_entry"
	KindPackagingLot  Kind = "packaging_lot"
	KindMillingLot    Kind = "milling_lot"
	KindDeliverySlip  Kind = "delivery_slip"
)

// Ref identifies the starting entity of a lookup. ID holds the identifier as
// stored, so case-insensitive matches are reported with their canonical spelling.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// NoteCode classifies report notes.
type NoteCode string

const (
	// NoteAmbiguous marks a join that had several candidates; the first in store order was used.
	NoteAmbiguous NoteCode = "ambiguous_join"
	// NoteInferred marks a section filled through a fallback that could not be verified.
	NoteInferred NoteCode = "inferred"
	// NoteMissingReference marks an identifier that points to no stored record.
	NoteMissingReference NoteCode = "missing_reference"
	// NoteUnresolved marks an identifier from which no upstream link could be parsed.
	NoteUnresolved NoteCode = "unresolved"
	// NoteCandidates marks a production section that lists several admissible lots.
	NoteCandidates NoteCode = "multiple_candidates"
)

// Note is a non-fatal remark attached to a report.
type Note struct {
	Code    NoteCode `json:"code"`
	Section string   `json:"section"`
	Message string   `json:"message"`
}

// Report is the lineage graph rooted at one entity. Every section is always
// present; empty sections carry empty slices and nil single-entity pointers.
type Report struct {
	Query           string             `json:"query"`
	Start           Ref                `json:"start"`
	SnapshotVersion uint64             `json:"snapshot_version"`
	Origin          OriginSection      `json:"origin"`
	Milling         MillingSection     `json:"milling"`
	Production      ProductionSection  `json:"production"`
	Cellar          CellarSection      `json:"cellar"`
	Nurse           NurseSection       `json:"nurse"`
	Destination     DestinationSection `json:"destination"`
	DirectSale      DirectSaleSection  `json:"direct_sale"`
	Notes           []Note             `json:"notes"`
}

// ProducerEntry groups the slips a producer contributed.
type ProducerEntry struct {
	Producer   domain.Producer `json:"producer"`
	Registered bool            `json:"registered"`
	SlipIDs    []int           `json:"slip_ids"`
	NetKg      float64         `json:"net_kg"`
}

// OriginSection lists producers and their delivery slips.
type OriginSection struct {
	Producers []ProducerEntry       `json:"producers"`
	Slips     []domain.DeliverySlip `json:"slips"`
}

// MillingSection holds the representative milling lot. Constituents lists
// every milling lot that contributed to the resolved production.
type MillingSection struct {
	Lot          *domain.MillingLot  `json:"lot"`
	Constituents []domain.MillingLot `json:"constituents"`
	Inferred     bool                `json:"inferred"`
}

// ProductionSection holds the resolved production lot and, for nurse tank
// entries, every admissible candidate newest first.
type ProductionSection struct {
	Lot        *domain.ProductionLot  `json:"lot"`
	Candidates []domain.ProductionLot `json:"candidates"`
}

// CellarSection describes the cellar tank the oil went through.
type CellarSection struct {
	Tank        *domain.Tank `json:"tank"`
	TankID      int          `json:"tank_id,omitempty"`
	FillPercent float64      `json:"fill_percent"`
}

// NurseSection lists nurse tank transfers relevant to the lineage.
type NurseSection struct {
	Transfers []domain.OilMovement `json:"transfers"`
}

// ExitEntry is a bulk exit joined to its customer.
type ExitEntry struct {
	Exit         domain.BulkExit `json:"exit"`
	CustomerName string          `json:"customer_name,omitempty"`
}

// SaleEntry is one sales order line joined to its customer.
type SaleEntry struct {
	OrderID        string      `json:"order_id"`
	Date           domain.Date `json:"date"`
	CustomerID     string      `json:"customer_id"`
	CustomerName   string      `json:"customer_name,omitempty"`
	PackagingLotID string      `json:"packaging_lot_id"`
	Units          int         `json:"units"`
	Price          float64     `json:"price"`
}

// DestinationSection lists where the oil went.
type DestinationSection struct {
	PackagingLots []domain.PackagingLot `json:"packaging_lots"`
	BulkExits     []ExitEntry           `json:"bulk_exits"`
	Sales         []SaleEntry           `json:"sales"`
}

// Empty reports whether the oil has not left storage yet.
func (d DestinationSection) Empty() bool {
	return len(d.PackagingLots) == 0 && len(d.BulkExits) == 0
}

// DirectSaleSection is populated only for slips sold as fruit.
type DirectSaleSection struct {
	Active     bool        `json:"active"`
	SlipID     int         `json:"slip_id,omitempty"`
	BuyerID    string      `json:"buyer_id,omitempty"`
	BuyerName  string      `json:"buyer_name,omitempty"`
	Registered bool        `json:"registered"`
	Date       domain.Date `json:"date"`
	NetKg      float64     `json:"net_kg"`
}

func newReport(query string, start Ref, version uint64) Report {
	return Report{
		Query:           query,
		Start:           start,
		SnapshotVersion: version,
		Origin: OriginSection{
			Producers: []ProducerEntry{},
			Slips:     []domain.DeliverySlip{},
		},
		Milling:     MillingSection{Constituents: []domain.MillingLot{}},
		Production:  ProductionSection{Candidates: []domain.ProductionLot{}},
		Nurse:       NurseSection{Transfers: []domain.OilMovement{}},
		Destination: DestinationSection{PackagingLots: []domain.PackagingLot{}, BulkExits: []ExitEntry{}, Sales: []SaleEntry{}},
		Notes:       []Note{},
	}
}

func (r *Report) note(code NoteCode, section, message string) {
	r.Notes = append(r.Notes, Note{Code: code, Section: section, Message: message})
}
