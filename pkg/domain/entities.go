// Package domain defines the persistent mill entities, value types, and
// rule evaluation primitives used by almazara.
package domain

// EntityType identifies the type of record stored in the mill domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProducer identifies an olive grower.
	EntityProducer EntityType = "producer"
	// EntityCustomer identifies a buyer of oil, olives or pomace.
	EntityCustomer EntityType = "customer"
	// EntityDeliverySlip identifies an olive intake record.
	EntityDeliverySlip EntityType = "delivery_slip"
	// EntityMillingLot identifies the output of one hopper closure.
	EntityMillingLot EntityType = "milling_lot"
	// EntityProductionLot identifies a daily consolidation of milling lots.
	EntityProductionLot EntityType = "production_lot"
	// EntityTank identifies a cellar storage tank.
	EntityTank EntityType = "tank"
	// EntityNurseTank identifies the singleton intermediate tank feeding the bottling line.
	EntityNurseTank EntityType = "nurse_tank"
	// EntityOilMovement identifies a ledger entry moving oil between endpoints.
	EntityOilMovement EntityType = "oil_movement"
	// EntityPackagingLot identifies a bottling session output.
	EntityPackagingLot EntityType = "packaging_lot"
	// EntityBulkExit identifies oil leaving the mill in bulk.
	EntityBulkExit EntityType = "bulk_exit"
	// EntitySalesOrder identifies a sale of packaged product.
	EntitySalesOrder EntityType = "sales_order"
	// EntityAuxEntry identifies an auxiliary material receipt.
	EntityAuxEntry EntityType = "aux_entry"
)

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Producer is an olive grower delivering fruit to the mill.
type Producer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	TaxID   string `json:"tax_id,omitempty"`
	Address string `json:"address,omitempty"`
}

// CustomerType classifies buyers.
type CustomerType string

const (
	CustomerWholesale   CustomerType = "wholesale"
	CustomerRetail      CustomerType = "retail"
	CustomerOliveBuyer  CustomerType = "olive_buyer"
	CustomerPomaceBuyer CustomerType = "pomace_buyer"
)

// Customer is any counterparty buying from the mill.
type Customer struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	TaxID string       `json:"tax_id,omitempty"`
	Type  CustomerType `json:"type"`
}

// SlipType distinguishes olives destined to the mill from olives resold as fruit.
type SlipType string

const (
	SlipMilling    SlipType = "MILLING"
	SlipDirectSale SlipType = "DIRECT_SALE"
)

// SlipStatus tracks a delivery slip through intake.
type SlipStatus string

const (
	SlipPending    SlipStatus = "PENDING"
	SlipMilled     SlipStatus = "MILLED"
	SlipSoldDirect SlipStatus = "SOLD_DIRECT"
)

// LabAnalysis holds the intake laboratory figures for a delivery.
type LabAnalysis struct {
	FatYield float64 `json:"fat_yield"`
	Acidity  float64 `json:"acidity"`
}

// DeliverySlip records one olive delivery by a producer.
type DeliverySlip struct {
	ID           int         `json:"id"`
	Date         Date        `json:"date"`
	ProducerID   string      `json:"producer_id"`
	Variety      string      `json:"variety"`
	NetKg        float64     `json:"net_kg"`
	Analysis     LabAnalysis `json:"analysis"`
	Type         SlipType    `json:"type"`
	Status       SlipStatus  `json:"status"`
	HopperID     int         `json:"hopper_id,omitempty"`
	MillingLotID string      `json:"milling_lot_id,omitempty"`
	BuyerID      string      `json:"buyer_id,omitempty"`
	BuyerName    string      `json:"buyer_name,omitempty"`
}

// MillingLot is the output of closing a hopper: the slips milled together
// and the oil they produced.
type MillingLot struct {
	ID            string  `json:"id"`
	HopperID      int     `json:"hopper_id"`
	UseCounter    int     `json:"use_counter"`
	Date          Date    `json:"date"`
	InputKg       float64 `json:"input_kg"`
	ExpectedOilKg float64 `json:"expected_oil_kg"`
	ActualOilKg   float64 `json:"actual_oil_kg"`
	TankID        int     `json:"tank_id"`
	Variety       string  `json:"variety"`
	SlipIDs       []int   `json:"slip_ids"`
}

// ProductionLot consolidates the milling lots of a working day into a tank.
type ProductionLot struct {
	ID            string   `json:"id"`
	Date          Date     `json:"date"`
	MillingLotIDs []string `json:"milling_lot_ids"`
	OliveKg       float64  `json:"olive_kg"`
	OilKg         float64  `json:"oil_kg"`
	TankID        int      `json:"tank_id"`
	Notes         string   `json:"notes,omitempty"`
}

// TankStatus tracks the fill state of a cellar tank.
type TankStatus string

const (
	TankEmpty   TankStatus = "EMPTY"
	TankFilling TankStatus = "FILLING"
	TankFull    TankStatus = "FULL"
)

// Tank is a cellar storage tank.
type Tank struct {
	ID         int        `json:"id"`
	CapacityKg float64    `json:"capacity_kg"`
	CurrentKg  float64    `json:"current_kg"`
	Variety    string     `json:"variety,omitempty"`
	Status     TankStatus `json:"status"`
	Cycle      int        `json:"cycle"`
}

// NurseTank is the singleton intermediate tank feeding the bottling line.
type NurseTank struct {
	CurrentKg        float64 `json:"current_kg"`
	LastSourceTankID int     `json:"last_source_tank_id,omitempty"`
	LastEntrySeq     int     `json:"last_entry_seq,omitempty"`
	CurrentBatchID   string  `json:"current_batch_id,omitempty"`
	Year             int     `json:"year,omitempty"`
}

// Closure describes the structured reason a tank cycle was closed.
type Closure struct {
	Reason     string  `json:"reason"`
	ResidualKg float64 `json:"residual_kg"`
	Cycle      int     `json:"cycle"`
}

// OilMovement is an append-only ledger entry moving oil between endpoints.
type OilMovement struct {
	ID      string   `json:"id"`
	Date    Date     `json:"date"`
	Source  Endpoint `json:"source"`
	Target  Endpoint `json:"target"`
	Kg      float64  `json:"kg"`
	Label   string   `json:"label,omitempty"`
	BatchID string   `json:"batch_id,omitempty"`
	Closure *Closure `json:"closure,omitempty"`
}

// IsNurseEntry reports whether the movement fills the nurse tank.
func (m OilMovement) IsNurseEntry() bool {
	return m.Target.Kind == EndpointNurseTank
}

// PackagingType distinguishes filtered oil bottled from the nurse tank from
// unfiltered oil bottled straight from a cellar tank.
type PackagingType string

const (
	PackagingFiltered   PackagingType = "Filtrado"
	PackagingUnfiltered PackagingType = "Sin Filtrar"
)

// PackagingLot records one bottling session.
//
// CellarTankID (unfiltered lots bottled straight from a cellar tank) and
// NurseBatchID (filtered lots bottled from the nurse tank) are lineage tags
// stamped when the lot is recorded. Lots imported from older snapshots may
// carry only the identifier and free-text SourceInfo, in which case readers
// derive the tags from those.
type PackagingLot struct {
	ID           string        `json:"id"`
	Date         Date          `json:"date"`
	Format       string        `json:"format"`
	Units        int           `json:"units"`
	Type         PackagingType `json:"type"`
	SourceInfo   string        `json:"source_info"`
	Kg           float64       `json:"kg"`
	BottleBatch  string        `json:"bottle_batch,omitempty"`
	CapBatch     string        `json:"cap_batch,omitempty"`
	LabelBatch   string        `json:"label_batch,omitempty"`
	CellarTankID int           `json:"cellar_tank_id,omitempty"`
	NurseBatchID string        `json:"nurse_batch_id,omitempty"`
}

// ExitType classifies bulk exits.
type ExitType string

const (
	ExitTanker ExitType = "CISTERNA"
	ExitSample ExitType = "MUESTRA"
)

// BulkExit records oil leaving a tank without being bottled.
type BulkExit struct {
	ID           string   `json:"id"`
	Date         Date     `json:"date"`
	TankID       int      `json:"tank_id"`
	CustomerID   string   `json:"customer_id"`
	Kg           float64  `json:"kg"`
	Plate        string   `json:"plate,omitempty"`
	DeliveryNote string   `json:"delivery_note,omitempty"`
	Type         ExitType `json:"type"`
}

// SalesLine is one packaged product line of a sales order.
type SalesLine struct {
	PackagingLotID string  `json:"packaging_lot_id"`
	Units          int     `json:"units"`
	Price          float64 `json:"price"`
}

// SalesOrder is a sale of packaged product to a customer.
type SalesOrder struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	Date       Date        `json:"date"`
	Lines      []SalesLine `json:"lines"`
}

// AuxMaterial enumerates packaging consumables.
type AuxMaterial string

const (
	AuxBottle AuxMaterial = "bottle"
	AuxCap    AuxMaterial = "cap"
	AuxLabel  AuxMaterial = "label"
)

// AuxEntry records a receipt of packaging consumables.
type AuxEntry struct {
	ID       string      `json:"id"`
	Date     Date        `json:"date"`
	Material AuxMaterial `json:"material"`
	Batch    string      `json:"batch"`
	Supplier string      `json:"supplier,omitempty"`
	Units    int         `json:"units"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported modifications captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations of the result.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
