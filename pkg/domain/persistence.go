package domain

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate is wrapped by stores when a create would overwrite an existing record.
var ErrDuplicate = errors.New("already exists")

// ErrMissing is wrapped by stores when an update targets an unknown record.
var ErrMissing = errors.New("not found")

// ErrSnapshotPersist is wrapped by durable stores when a transaction committed
// in memory but the snapshot could not be written to the backing database.
var ErrSnapshotPersist = errors.New("snapshot persist failed")

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreateProducer(Producer) (Producer, error)
	CreateCustomer(Customer) (Customer, error)
	CreateDeliverySlip(DeliverySlip) (DeliverySlip, error)
	UpdateDeliverySlip(id int, mutator func(*DeliverySlip) error) (DeliverySlip, error)
	CreateMillingLot(MillingLot) (MillingLot, error)
	UpdateMillingLot(id string, mutator func(*MillingLot) error) (MillingLot, error)
	CreateProductionLot(ProductionLot) (ProductionLot, error)
	UpdateProductionLot(id string, mutator func(*ProductionLot) error) (ProductionLot, error)
	CreateTank(Tank) (Tank, error)
	UpdateTank(id int, mutator func(*Tank) error) (Tank, error)
	UpdateNurseTank(mutator func(*NurseTank) error) (NurseTank, error)
	AppendMovement(OilMovement) (OilMovement, error)
	CreatePackagingLot(PackagingLot) (PackagingLot, error)
	CreateBulkExit(BulkExit) (BulkExit, error)
	CreateSalesOrder(SalesOrder) (SalesOrder, error)
	CreateAuxEntry(AuxEntry) (AuxEntry, error)
}

// TransactionView provides read-only access to snapshot data for services and rules.
type TransactionView interface {
	RuleView
	Version() uint64
	ListProducers() []Producer
	ListCustomers() []Customer
	ListBulkExits() []BulkExit
	ListSalesOrders() []SalesOrder
	ListAuxEntries() []AuxEntry
	FindProducer(id string) (Producer, bool)
	FindCustomer(id string) (Customer, bool)
	FindPackagingLot(id string) (PackagingLot, bool)
	// Snapshot returns a deep copy of the state visible to the view.
	Snapshot() Snapshot
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState() Snapshot
	ImportState(Snapshot)
}
