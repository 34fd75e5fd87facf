package memory

import "almazara/pkg/domain"

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// Version returns the snapshot version the view was taken from.
func (v transactionView) Version() uint64 {
	return v.state.snap.Version
}

// Snapshot returns a deep copy of the visible state.
func (v transactionView) Snapshot() Snapshot {
	return v.state.snap.Clone()
}

func (v transactionView) ListProducers() []domain.Producer {
	return append([]domain.Producer{}, v.state.snap.Producers...)
}

func (v transactionView) ListCustomers() []domain.Customer {
	return append([]domain.Customer{}, v.state.snap.Customers...)
}

func (v transactionView) ListDeliverySlips() []domain.DeliverySlip {
	return append([]domain.DeliverySlip{}, v.state.snap.DeliverySlips...)
}

// ListMillingLots returns milling lots in creation order.
func (v transactionView) ListMillingLots() []domain.MillingLot {
	out := make([]domain.MillingLot, 0, len(v.state.snap.MillingLots))
	for _, m := range v.state.snap.MillingLots {
		out = append(out, domain.CloneMillingLot(m))
	}
	return out
}

// ListProductionLots returns production lots in creation order.
func (v transactionView) ListProductionLots() []domain.ProductionLot {
	out := make([]domain.ProductionLot, 0, len(v.state.snap.ProductionLots))
	for _, p := range v.state.snap.ProductionLots {
		out = append(out, domain.CloneProductionLot(p))
	}
	return out
}

func (v transactionView) ListTanks() []domain.Tank {
	return append([]domain.Tank{}, v.state.snap.Tanks...)
}

// ListMovements returns the oil ledger in append order.
func (v transactionView) ListMovements() []domain.OilMovement {
	out := make([]domain.OilMovement, 0, len(v.state.snap.Movements))
	for _, m := range v.state.snap.Movements {
		out = append(out, domain.CloneMovement(m))
	}
	return out
}

func (v transactionView) ListPackagingLots() []domain.PackagingLot {
	return append([]domain.PackagingLot{}, v.state.snap.PackagingLots...)
}

func (v transactionView) ListBulkExits() []domain.BulkExit {
	return append([]domain.BulkExit{}, v.state.snap.BulkExits...)
}

func (v transactionView) ListSalesOrders() []domain.SalesOrder {
	out := make([]domain.SalesOrder, 0, len(v.state.snap.SalesOrders))
	for _, o := range v.state.snap.SalesOrders {
		out = append(out, domain.CloneSalesOrder(o))
	}
	return out
}

func (v transactionView) ListAuxEntries() []domain.AuxEntry {
	return append([]domain.AuxEntry{}, v.state.snap.AuxEntries...)
}

func (v transactionView) FindProducer(id string) (domain.Producer, bool) {
	idx, ok := v.state.producers[id]
	if !ok {
		return domain.Producer{}, false
	}
	return v.state.snap.Producers[idx], true
}

func (v transactionView) FindCustomer(id string) (domain.Customer, bool) {
	idx, ok := v.state.customers[id]
	if !ok {
		return domain.Customer{}, false
	}
	return v.state.snap.Customers[idx], true
}

func (v transactionView) FindDeliverySlip(id int) (domain.DeliverySlip, bool) {
	idx, ok := v.state.slips[id]
	if !ok {
		return domain.DeliverySlip{}, false
	}
	return v.state.snap.DeliverySlips[idx], true
}

func (v transactionView) FindMillingLot(id string) (domain.MillingLot, bool) {
	idx, ok := v.state.milling[id]
	if !ok {
		return domain.MillingLot{}, false
	}
	return domain.CloneMillingLot(v.state.snap.MillingLots[idx]), true
}

func (v transactionView) FindProductionLot(id string) (domain.ProductionLot, bool) {
	idx, ok := v.state.production[id]
	if !ok {
		return domain.ProductionLot{}, false
	}
	return domain.CloneProductionLot(v.state.snap.ProductionLots[idx]), true
}

func (v transactionView) FindTank(id int) (domain.Tank, bool) {
	idx, ok := v.state.tanks[id]
	if !ok {
		return domain.Tank{}, false
	}
	return v.state.snap.Tanks[idx], true
}

func (v transactionView) FindPackagingLot(id string) (domain.PackagingLot, bool) {
	idx, ok := v.state.packaging[id]
	if !ok {
		return domain.PackagingLot{}, false
	}
	return v.state.snap.PackagingLots[idx], true
}

func (v transactionView) NurseTank() domain.NurseTank {
	return v.state.snap.NurseTank
}

// Snapshot returns a deep copy of the committed state.
func (s *Store) Snapshot() Snapshot {
	return s.ExportState()
}

// Version reports the version of the committed state.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snap.Version
}
