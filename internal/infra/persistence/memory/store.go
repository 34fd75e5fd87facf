// Package memory provides an in-memory implementation of the mill persistence
// store used for tests, ephemeral environments and as the transactional core
// of the durable backends.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"almazara/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Snapshot aliases domain.Snapshot for persistence helpers.
	Snapshot = domain.Snapshot
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// memoryState pairs the ordered collections of a snapshot with positional
// indexes keyed by identifier.
type memoryState struct {
	snap       domain.Snapshot
	producers  map[string]int
	customers  map[string]int
	slips      map[int]int
	milling    map[string]int
	production map[string]int
	tanks      map[int]int
	movements  map[string]int
	packaging  map[string]int
	exits      map[string]int
	orders     map[string]int
	aux        map[string]int
}

func newMemoryState(snap domain.Snapshot) memoryState {
	s := memoryState{snap: snap}
	s.reindex()
	return s
}

func (s *memoryState) reindex() {
	s.producers = make(map[string]int, len(s.snap.Producers))
	for i, p := range s.snap.Producers {
		s.producers[p.ID] = i
	}
	s.customers = make(map[string]int, len(s.snap.Customers))
	for i, c := range s.snap.Customers {
		s.customers[c.ID] = i
	}
	s.slips = make(map[int]int, len(s.snap.DeliverySlips))
	for i, d := range s.snap.DeliverySlips {
		s.slips[d.ID] = i
	}
	s.milling = make(map[string]int, len(s.snap.MillingLots))
	for i, m := range s.snap.MillingLots {
		s.milling[m.ID] = i
	}
	s.production = make(map[string]int, len(s.snap.ProductionLots))
	for i, p := range s.snap.ProductionLots {
		s.production[p.ID] = i
	}
	s.tanks = make(map[int]int, len(s.snap.Tanks))
	for i, t := range s.snap.Tanks {
		s.tanks[t.ID] = i
	}
	s.movements = make(map[string]int, len(s.snap.Movements))
	for i, m := range s.snap.Movements {
		s.movements[m.ID] = i
	}
	s.packaging = make(map[string]int, len(s.snap.PackagingLots))
	for i, p := range s.snap.PackagingLots {
		s.packaging[p.ID] = i
	}
	s.exits = make(map[string]int, len(s.snap.BulkExits))
	for i, e := range s.snap.BulkExits {
		s.exits[e.ID] = i
	}
	s.orders = make(map[string]int, len(s.snap.SalesOrders))
	for i, o := range s.snap.SalesOrders {
		s.orders[o.ID] = i
	}
	s.aux = make(map[string]int, len(s.snap.AuxEntries))
	for i, a := range s.snap.AuxEntries {
		s.aux[a.ID] = i
	}
}

func (s memoryState) clone() memoryState {
	return newMemoryState(s.snap.Clone())
}

// migrateSnapshot normalizes snapshots written by older releases so every
// collection is present and every nested slice is non-nil.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	out := snapshot.Clone()
	for i := range out.MillingLots {
		if out.MillingLots[i].SlipIDs == nil {
			out.MillingLots[i].SlipIDs = []int{}
		}
	}
	for i := range out.ProductionLots {
		if out.ProductionLots[i].MillingLotIDs == nil {
			out.ProductionLots[i].MillingLotIDs = []string{}
		}
	}
	for i := range out.Tanks {
		if out.Tanks[i].Status == "" {
			out.Tanks[i].Status = domain.TankEmpty
			if out.Tanks[i].CurrentKg > 0 {
				out.Tanks[i].Status = domain.TankFilling
			}
		}
	}
	for i := range out.DeliverySlips {
		slip := &out.DeliverySlips[i]
		if slip.Type == "" {
			slip.Type = domain.SlipMilling
		}
		if slip.Status == "" {
			switch {
			case slip.Type == domain.SlipDirectSale:
				slip.Status = domain.SlipSoldDirect
			case slip.MillingLotID != "":
				slip.Status = domain.SlipMilled
			default:
				slip.Status = domain.SlipPending
			}
		}
	}
	return out
}

// Store provides an in-memory transactional store for the mill domain.
// Every committed transaction that records at least one change produces a
// new snapshot version.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(domain.Snapshot{}.Clone()),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snap.Clone()
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newMemoryState(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider; nil restores the wall clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	s.nowFn = fn
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}
	if len(tx.changes) == 0 {
		return Result{}, nil
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	tx.state.snap.Version = s.state.snap.Version + 1
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp fixed for the transaction.
func (tx *transaction) Now() time.Time {
	return tx.now
}

func (tx *transaction) CreateProducer(p domain.Producer) (domain.Producer, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := tx.state.producers[p.ID]; exists {
		return domain.Producer{}, fmt.Errorf("producer %q: %w", p.ID, domain.ErrDuplicate)
	}
	tx.state.snap.Producers = append(tx.state.snap.Producers, p)
	tx.state.producers[p.ID] = len(tx.state.snap.Producers) - 1
	tx.recordChange(Change{Entity: domain.EntityProducer, Action: domain.ActionCreate, After: p})
	return p, nil
}

func (tx *transaction) CreateCustomer(c domain.Customer) (domain.Customer, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.customers[c.ID]; exists {
		return domain.Customer{}, fmt.Errorf("customer %q: %w", c.ID, domain.ErrDuplicate)
	}
	tx.state.snap.Customers = append(tx.state.snap.Customers, c)
	tx.state.customers[c.ID] = len(tx.state.snap.Customers) - 1
	tx.recordChange(Change{Entity: domain.EntityCustomer, Action: domain.ActionCreate, After: c})
	return c, nil
}

// CreateDeliverySlip stores a slip, assigning the next sequential number when ID is zero.
func (tx *transaction) CreateDeliverySlip(d domain.DeliverySlip) (domain.DeliverySlip, error) {
	if d.ID == 0 {
		d.ID = tx.nextSlipID()
	}
	if _, exists := tx.state.slips[d.ID]; exists {
		return domain.DeliverySlip{}, fmt.Errorf("delivery slip %d: %w", d.ID, domain.ErrDuplicate)
	}
	tx.state.snap.DeliverySlips = append(tx.state.snap.DeliverySlips, d)
	tx.state.slips[d.ID] = len(tx.state.snap.DeliverySlips) - 1
	tx.recordChange(Change{Entity: domain.EntityDeliverySlip, Action: domain.ActionCreate, After: d})
	return d, nil
}

func (tx *transaction) nextSlipID() int {
	next := 1
	for _, d := range tx.state.snap.DeliverySlips {
		if d.ID >= next {
			next = d.ID + 1
		}
	}
	return next
}

func (tx *transaction) UpdateDeliverySlip(id int, mutator func(*domain.DeliverySlip) error) (domain.DeliverySlip, error) {
	idx, ok := tx.state.slips[id]
	if !ok {
		return domain.DeliverySlip{}, fmt.Errorf("delivery slip %d: %w", id, domain.ErrMissing)
	}
	before := tx.state.snap.DeliverySlips[idx]
	current := before
	if err := mutator(&current); err != nil {
		return domain.DeliverySlip{}, err
	}
	current.ID = id
	tx.state.snap.DeliverySlips[idx] = current
	tx.recordChange(Change{Entity: domain.EntityDeliverySlip, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) CreateMillingLot(m domain.MillingLot) (domain.MillingLot, error) {
	if m.ID == "" {
		return domain.MillingLot{}, fmt.Errorf("milling lot id required")
	}
	if _, exists := tx.state.milling[m.ID]; exists {
		return domain.MillingLot{}, fmt.Errorf("milling lot %q: %w", m.ID, domain.ErrDuplicate)
	}
	m = domain.CloneMillingLot(m)
	tx.state.snap.MillingLots = append(tx.state.snap.MillingLots, m)
	tx.state.milling[m.ID] = len(tx.state.snap.MillingLots) - 1
	tx.recordChange(Change{Entity: domain.EntityMillingLot, Action: domain.ActionCreate, After: domain.CloneMillingLot(m)})
	return domain.CloneMillingLot(m), nil
}

func (tx *transaction) UpdateMillingLot(id string, mutator func(*domain.MillingLot) error) (domain.MillingLot, error) {
	idx, ok := tx.state.milling[id]
	if !ok {
		return domain.MillingLot{}, fmt.Errorf("milling lot %q: %w", id, domain.ErrMissing)
	}
	before := domain.CloneMillingLot(tx.state.snap.MillingLots[idx])
	current := domain.CloneMillingLot(before)
	if err := mutator(&current); err != nil {
		return domain.MillingLot{}, err
	}
	current.ID = id
	tx.state.snap.MillingLots[idx] = current
	tx.recordChange(Change{Entity: domain.EntityMillingLot, Action: domain.ActionUpdate, Before: before, After: domain.CloneMillingLot(current)})
	return domain.CloneMillingLot(current), nil
}

func (tx *transaction) CreateProductionLot(p domain.ProductionLot) (domain.ProductionLot, error) {
	if p.ID == "" {
		return domain.ProductionLot{}, fmt.Errorf("production lot id required")
	}
	if _, exists := tx.state.production[p.ID]; exists {
		return domain.ProductionLot{}, fmt.Errorf("production lot %q: %w", p.ID, domain.ErrDuplicate)
	}
	p = domain.CloneProductionLot(p)
	tx.state.snap.ProductionLots = append(tx.state.snap.ProductionLots, p)
	tx.state.production[p.ID] = len(tx.state.snap.ProductionLots) - 1
	tx.recordChange(Change{Entity: domain.EntityProductionLot, Action: domain.ActionCreate, After: domain.CloneProductionLot(p)})
	return domain.CloneProductionLot(p), nil
}

func (tx *transaction) UpdateProductionLot(id string, mutator func(*domain.ProductionLot) error) (domain.ProductionLot, error) {
	idx, ok := tx.state.production[id]
	if !ok {
		return domain.ProductionLot{}, fmt.Errorf("production lot %q: %w", id, domain.ErrMissing)
	}
	before := domain.CloneProductionLot(tx.state.snap.ProductionLots[idx])
	current := domain.CloneProductionLot(before)
	if err := mutator(&current); err != nil {
		return domain.ProductionLot{}, err
	}
	current.ID = id
	tx.state.snap.ProductionLots[idx] = current
	tx.recordChange(Change{Entity: domain.EntityProductionLot, Action: domain.ActionUpdate, Before: before, After: domain.CloneProductionLot(current)})
	return domain.CloneProductionLot(current), nil
}

func (tx *transaction) CreateTank(t domain.Tank) (domain.Tank, error) {
	if t.ID <= 0 {
		return domain.Tank{}, fmt.Errorf("tank id must be positive")
	}
	if _, exists := tx.state.tanks[t.ID]; exists {
		return domain.Tank{}, fmt.Errorf("tank %d: %w", t.ID, domain.ErrDuplicate)
	}
	if t.Status == "" {
		t.Status = domain.TankEmpty
	}
	tx.state.snap.Tanks = append(tx.state.snap.Tanks, t)
	tx.state.tanks[t.ID] = len(tx.state.snap.Tanks) - 1
	tx.recordChange(Change{Entity: domain.EntityTank, Action: domain.ActionCreate, After: t})
	return t, nil
}

func (tx *transaction) UpdateTank(id int, mutator func(*domain.Tank) error) (domain.Tank, error) {
	idx, ok := tx.state.tanks[id]
	if !ok {
		return domain.Tank{}, fmt.Errorf("tank %d: %w", id, domain.ErrMissing)
	}
	before := tx.state.snap.Tanks[idx]
	current := before
	if err := mutator(&current); err != nil {
		return domain.Tank{}, err
	}
	current.ID = id
	tx.state.snap.Tanks[idx] = current
	tx.recordChange(Change{Entity: domain.EntityTank, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) UpdateNurseTank(mutator func(*domain.NurseTank) error) (domain.NurseTank, error) {
	before := tx.state.snap.NurseTank
	current := before
	if err := mutator(&current); err != nil {
		return domain.NurseTank{}, err
	}
	tx.state.snap.NurseTank = current
	tx.recordChange(Change{Entity: domain.EntityNurseTank, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// AppendMovement adds a ledger entry. Movements are never updated or removed.
func (tx *transaction) AppendMovement(m domain.OilMovement) (domain.OilMovement, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	if _, exists := tx.state.movements[m.ID]; exists {
		return domain.OilMovement{}, fmt.Errorf("movement %q: %w", m.ID, domain.ErrDuplicate)
	}
	if err := m.Source.Validate(); err != nil {
		return domain.OilMovement{}, fmt.Errorf("movement source: %w", err)
	}
	if err := m.Target.Validate(); err != nil {
		return domain.OilMovement{}, fmt.Errorf("movement target: %w", err)
	}
	m = domain.CloneMovement(m)
	tx.state.snap.Movements = append(tx.state.snap.Movements, m)
	tx.state.movements[m.ID] = len(tx.state.snap.Movements) - 1
	tx.recordChange(Change{Entity: domain.EntityOilMovement, Action: domain.ActionCreate, After: domain.CloneMovement(m)})
	return domain.CloneMovement(m), nil
}

func (tx *transaction) CreatePackagingLot(p domain.PackagingLot) (domain.PackagingLot, error) {
	if p.ID == "" {
		return domain.PackagingLot{}, fmt.Errorf("packaging lot id required")
	}
	if _, exists := tx.state.packaging[p.ID]; exists {
		return domain.PackagingLot{}, fmt.Errorf("packaging lot %q: %w", p.ID, domain.ErrDuplicate)
	}
	tx.state.snap.PackagingLots = append(tx.state.snap.PackagingLots, p)
	tx.state.packaging[p.ID] = len(tx.state.snap.PackagingLots) - 1
	tx.recordChange(Change{Entity: domain.EntityPackagingLot, Action: domain.ActionCreate, After: p})
	return p, nil
}

func (tx *transaction) CreateBulkExit(e domain.BulkExit) (domain.BulkExit, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if _, exists := tx.state.exits[e.ID]; exists {
		return domain.BulkExit{}, fmt.Errorf("bulk exit %q: %w", e.ID, domain.ErrDuplicate)
	}
	tx.state.snap.BulkExits = append(tx.state.snap.BulkExits, e)
	tx.state.exits[e.ID] = len(tx.state.snap.BulkExits) - 1
	tx.recordChange(Change{Entity: domain.EntityBulkExit, Action: domain.ActionCreate, After: e})
	return e, nil
}

func (tx *transaction) CreateSalesOrder(o domain.SalesOrder) (domain.SalesOrder, error) {
	if o.ID == "" {
		o.ID = newID()
	}
	if _, exists := tx.state.orders[o.ID]; exists {
		return domain.SalesOrder{}, fmt.Errorf("sales order %q: %w", o.ID, domain.ErrDuplicate)
	}
	o = domain.CloneSalesOrder(o)
	tx.state.snap.SalesOrders = append(tx.state.snap.SalesOrders, o)
	tx.state.orders[o.ID] = len(tx.state.snap.SalesOrders) - 1
	tx.recordChange(Change{Entity: domain.EntitySalesOrder, Action: domain.ActionCreate, After: domain.CloneSalesOrder(o)})
	return domain.CloneSalesOrder(o), nil
}

func (tx *transaction) CreateAuxEntry(a domain.AuxEntry) (domain.AuxEntry, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if _, exists := tx.state.aux[a.ID]; exists {
		return domain.AuxEntry{}, fmt.Errorf("aux entry %q: %w", a.ID, domain.ErrDuplicate)
	}
	tx.state.snap.AuxEntries = append(tx.state.snap.AuxEntries, a)
	tx.state.aux[a.ID] = len(tx.state.snap.AuxEntries) - 1
	tx.recordChange(Change{Entity: domain.EntityAuxEntry, Action: domain.ActionCreate, After: a})
	return a, nil
}
