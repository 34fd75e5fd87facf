package domain

// Snapshot is an immutable, versioned copy of the whole mill state. Every
// collection keeps insertion order so that "first match" lookups are
// deterministic for a given snapshot.
type Snapshot struct {
	Version        uint64          `json:"version"`
	Producers      []Producer      `json:"producers"`
	Customers      []Customer      `json:"customers"`
	DeliverySlips  []DeliverySlip  `json:"delivery_slips"`
	MillingLots    []MillingLot    `json:"milling_lots"`
	ProductionLots []ProductionLot `json:"production_lots"`
	Tanks          []Tank          `json:"tanks"`
	NurseTank      NurseTank       `json:"nurse_tank"`
	Movements      []OilMovement   `json:"movements"`
	PackagingLots  []PackagingLot  `json:"packaging_lots"`
	BulkExits      []BulkExit      `json:"bulk_exits"`
	SalesOrders    []SalesOrder    `json:"sales_orders"`
	AuxEntries     []AuxEntry      `json:"aux_entries"`
}

// Clone returns a deep copy that shares no backing arrays with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Producers = append([]Producer{}, s.Producers...)
	out.Customers = append([]Customer{}, s.Customers...)
	out.DeliverySlips = append([]DeliverySlip{}, s.DeliverySlips...)
	out.MillingLots = make([]MillingLot, len(s.MillingLots))
	for i, lot := range s.MillingLots {
		out.MillingLots[i] = CloneMillingLot(lot)
	}
	out.ProductionLots = make([]ProductionLot, len(s.ProductionLots))
	for i, lot := range s.ProductionLots {
		out.ProductionLots[i] = CloneProductionLot(lot)
	}
	out.Tanks = append([]Tank{}, s.Tanks...)
	out.Movements = make([]OilMovement, len(s.Movements))
	for i, m := range s.Movements {
		out.Movements[i] = CloneMovement(m)
	}
	out.PackagingLots = append([]PackagingLot{}, s.PackagingLots...)
	out.BulkExits = append([]BulkExit{}, s.BulkExits...)
	out.SalesOrders = make([]SalesOrder, len(s.SalesOrders))
	for i, o := range s.SalesOrders {
		out.SalesOrders[i] = CloneSalesOrder(o)
	}
	out.AuxEntries = append([]AuxEntry{}, s.AuxEntries...)
	return out
}

// CloneMillingLot deep-copies a milling lot.
func CloneMillingLot(m MillingLot) MillingLot {
	m.SlipIDs = append([]int{}, m.SlipIDs...)
	return m
}

// CloneProductionLot deep-copies a production lot.
func CloneProductionLot(p ProductionLot) ProductionLot {
	p.MillingLotIDs = append([]string{}, p.MillingLotIDs...)
	return p
}

// CloneMovement deep-copies a movement.
func CloneMovement(m OilMovement) OilMovement {
	if m.Closure != nil {
		c := *m.Closure
		m.Closure = &c
	}
	return m
}

// CloneSalesOrder deep-copies a sales order.
func CloneSalesOrder(o SalesOrder) SalesOrder {
	o.Lines = append([]SalesLine{}, o.Lines...)
	return o
}
