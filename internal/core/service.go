// Package core hosts the mill workflows: intake, milling, cellar, nurse tank,
// packaging and sales operations run as store transactions, plus the
// traceability lookup over committed snapshots.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"almazara/internal/infra/persistence/memory"
	"almazara/internal/trace"
	"almazara/pkg/domain"
)

// ErrInvalidInput is wrapped by workflow validation failures.
var ErrInvalidInput = errors.New("invalid input")

// ErrInsufficientQuantity is wrapped when an operation would draw more oil,
// units or consumables than are available.
var ErrInsufficientQuantity = errors.New("insufficient quantity")

// ErrNotFound is returned when reference validation fails within workflow helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func insufficient(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInsufficientQuantity, fmt.Sprintf(format, args...))
}

type clockSetter interface {
	SetNowFunc(func() time.Time)
}

// Service exposes the mill workflows as transactional operations.
type Service struct {
	store   PersistentStore
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	clock   Clock

	indexMu sync.Mutex
	index   *trace.Index
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	svc := &Service{
		store:   store,
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if setter, ok := store.(clockSetter); ok {
		clock := svc.clock
		setter.SetNowFunc(func() time.Time { return clock.Now() })
	}
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. A nil engine selects the default rule set.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

type operationMeta struct {
	entity EntityType
	action Action
}

var auditedOperations = map[string]operationMeta{
	"register_producer":  {EntityProducer, ActionCreate},
	"register_customer":  {EntityCustomer, ActionCreate},
	"register_tank":      {EntityTank, ActionCreate},
	"record_delivery":    {EntityDeliverySlip, ActionCreate},
	"close_hopper":       {EntityMillingLot, ActionCreate},
	"close_day":          {EntityProductionLot, ActionCreate},
	"transfer_to_nurse":  {EntityOilMovement, ActionCreate},
	"reset_tank":         {EntityTank, ActionUpdate},
	"record_packaging":   {EntityPackagingLot, ActionCreate},
	"record_bulk_exit":   {EntityBulkExit, ActionCreate},
	"record_sales_order": {EntitySalesOrder, ActionCreate},
	"record_aux_entry":   {EntityAuxEntry, ActionCreate},
}

// run executes fn in a store transaction and reports the outcome to the
// logger, metrics and audit sinks. fn returns the id of the affected record.
// A commit whose snapshot could not be persisted is logged and treated as
// successful: the in-memory state already holds it.
func (s *Service) run(ctx context.Context, op string, fn func(Transaction) (string, error)) (Result, error) {
	start := s.clock.Now()
	var entityID string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		id, err := fn(tx)
		entityID = id
		return err
	})
	duration := s.clock.Now().Sub(start)

	if errors.Is(err, domain.ErrSnapshotPersist) {
		s.logger.Warn("snapshot not persisted", "operation", op, "id", entityID, "error", err)
		err = nil
	}
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "id", entityID, "error", err)
		s.recordAudit(ctx, op, entityID, duration, err)
		return res, err
	}
	for _, w := range res.Warnings() {
		s.logger.Warn("rule warning", "operation", op, "rule", w.Rule, "entity", w.Entity, "entity_id", w.EntityID, "message", w.Message)
	}
	s.logger.Debug("operation committed", "operation", op, "id", entityID, "duration", duration)
	s.recordAudit(ctx, op, entityID, duration, nil)
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// Snapshot returns a deep copy of the committed mill state.
func (s *Service) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.store.View(ctx, func(view TransactionView) error {
		snap = view.Snapshot()
		return nil
	})
	return snap, err
}

// TraceIndex returns the lookup index for the committed snapshot. The index
// is rebuilt only when the snapshot version changes.
func (s *Service) TraceIndex(ctx context.Context) (*trace.Index, error) {
	var version uint64
	if err := s.store.View(ctx, func(view TransactionView) error {
		version = view.Version()
		return nil
	}); err != nil {
		return nil, err
	}
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if s.index != nil && s.index.Version() == version {
		return s.index, nil
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.index = trace.NewIndex(snap)
	return s.index, nil
}

// Trace classifies query and returns its lineage report. Unknown identifiers
// return an error wrapping trace.ErrNotFound.
func (s *Service) Trace(ctx context.Context, query string) (trace.Report, error) {
	start := s.clock.Now()
	idx, err := s.TraceIndex(ctx)
	if err != nil {
		s.metrics.Observe(ctx, "trace", false, s.clock.Now().Sub(start))
		s.logger.Error("trace index failed", "error", err)
		return trace.Report{}, err
	}
	report, err := idx.Lookup(query)
	duration := s.clock.Now().Sub(start)
	if err != nil {
		s.metrics.Observe(ctx, "trace", false, duration)
		s.logger.Debug("trace identifier not found", "query", query)
		return trace.Report{}, err
	}
	s.metrics.Observe(ctx, "trace", true, duration)
	s.logger.Debug("trace resolved", "query", query, "kind", report.Start.Kind, "id", report.Start.ID, "notes", len(report.Notes))
	return report, nil
}

// Resolve builds the lineage report for an already classified reference.
func (s *Service) Resolve(ctx context.Context, ref trace.Ref) (trace.Report, error) {
	idx, err := s.TraceIndex(ctx)
	if err != nil {
		return trace.Report{}, err
	}
	return trace.Resolve(idx, ref), nil
}
