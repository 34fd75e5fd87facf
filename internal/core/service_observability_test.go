package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"almazara/internal/infra/persistence/memory"
	"almazara/pkg/domain"
)

func TestServiceRecordsAuditAndMetrics(t *testing.T) {
	fixed := time.Date(2026, 1, 14, 8, 30, 0, 0, time.UTC)
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	svc := NewInMemoryService(nil,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)
	ctx := context.Background()
	if _, _, err := svc.RegisterProducer(ctx, domain.Producer{ID: "P9", Name: "Finca Norte"}); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	if _, _, err := svc.RegisterProducer(ctx, domain.Producer{ID: "P9", Name: "Finca Norte"}); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if len(audit.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(audit.entries))
	}
	ok, failed := audit.entries[0], audit.entries[1]
	if ok.Operation != "register_producer" || ok.Entity != EntityProducer || ok.Action != ActionCreate {
		t.Fatalf("unexpected success entry %+v", ok)
	}
	if ok.EntityID != "P9" || ok.Status != AuditStatusSuccess || !ok.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected success entry %+v", ok)
	}
	if failed.Status != AuditStatusError || failed.Error == "" {
		t.Fatalf("unexpected failure entry %+v", failed)
	}
	if !metrics.has("register_producer", true) || !metrics.has("register_producer", false) {
		t.Fatalf("expected success and failure observations, got %+v", metrics.calls)
	}
}

func TestServiceOptionsCoverClockAndLogger(t *testing.T) {
	fixed := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	log := &captureLogger{}
	svc := NewInMemoryService(nil, WithClock(ClockFunc(func() time.Time { return fixed })), WithLogger(log), WithLogger(nil))
	ctx := context.Background()
	if _, _, err := svc.RegisterProducer(ctx, domain.Producer{ID: "P1", Name: "Grower"}); err != nil {
		t.Fatalf("producer: %v", err)
	}
	slip, _, err := svc.RecordDelivery(ctx, domain.DeliverySlip{ProducerID: "P1", NetKg: 10, HopperID: 1})
	if err != nil {
		t.Fatalf("delivery: %v", err)
	}
	if slip.Date != domain.DateOf(fixed) {
		t.Fatalf("expected default date from service clock, got %s", slip.Date)
	}
	if !log.has("d:operation committed") {
		t.Fatalf("expected debug log on success, got %v", log.calls)
	}
	if _, _, err := svc.ResetTank(ctx, TankReset{TankID: 99, Reason: "x"}); err == nil {
		t.Fatalf("expected missing tank error")
	}
	if !log.has("e:operation failed") {
		t.Fatalf("expected error log on failure, got %v", log.calls)
	}
}

func TestServiceLogsRuleWarnings(t *testing.T) {
	log := &captureLogger{}
	store := memory.NewStore(NewDefaultRulesEngine())
	store.ImportState(domain.Snapshot{
		Tanks: []domain.Tank{{ID: 1, CapacityKg: 1000, CurrentKg: 100}},
		MillingLots: []domain.MillingLot{
			{ID: "MT1/1", TankID: 1, InputKg: 100, Date: date(2026, 1, 5)},
			{ID: "MT2/1", TankID: 1, InputKg: 80, Date: date(2026, 1, 6)},
		},
		ProductionLots: []domain.ProductionLot{
			{ID: "LP-050126", Date: date(2026, 1, 5), MillingLotIDs: []string{"MT1/1"}, TankID: 1},
			{ID: "LP-050126-A", Date: date(2026, 1, 5), MillingLotIDs: []string{"MT1/1"}, TankID: 1},
		},
	})
	svc := NewService(store, WithLogger(log))
	ctx := context.Background()

	if _, _, _, err := svc.CloseDay(ctx, DayClosure{Date: date(2026, 1, 6), MillingLotIDs: []string{"MT1/1"}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected consolidated lot to be rejected, got %v", err)
	}
	lot, _, res, err := svc.CloseDay(ctx, DayClosure{Date: date(2026, 1, 6), MillingLotIDs: []string{"MT2/1"}})
	if err != nil {
		t.Fatalf("close day: %v", err)
	}
	if lot.ID != "LP-060126" {
		t.Fatalf("unexpected lot %s", lot.ID)
	}
	warnings := res.Warnings()
	if len(warnings) != 1 || warnings[0].EntityID != "MT1/1" || warnings[0].Rule != "lineage_integrity" {
		t.Fatalf("expected shared milling lot warning, got %+v", res.Violations)
	}
	if !log.has("w:rule warning") {
		t.Fatalf("expected warning log, got %v", log.calls)
	}
}

type persistFailStore struct {
	*memory.Store
}

func (s persistFailStore) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	return res, fmt.Errorf("%w: disk full", domain.ErrSnapshotPersist)
}

func TestServiceTreatsPersistFailureAsWarning(t *testing.T) {
	log := &captureLogger{}
	metrics := &captureMetricsRecorder{}
	store := persistFailStore{Store: memory.NewStore(NewDefaultRulesEngine())}
	svc := NewService(store, WithLogger(log), WithMetricsRecorder(metrics))
	producer, _, err := svc.RegisterProducer(context.Background(), domain.Producer{ID: "P1", Name: "Grower"})
	if err != nil {
		t.Fatalf("persist failure must not fail the operation: %v", err)
	}
	if producer.ID != "P1" {
		t.Fatalf("unexpected producer %+v", producer)
	}
	if !log.has("w:snapshot not persisted") {
		t.Fatalf("expected persist warning, got %v", log.calls)
	}
	if !metrics.has("register_producer", true) {
		t.Fatalf("expected success observation")
	}
	snap, _ := svc.Snapshot(context.Background())
	if len(snap.Producers) != 1 {
		t.Fatalf("in-memory commit must be kept")
	}
}

func TestTraceIndexRebuiltOnlyOnNewVersion(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	first, err := svc.TraceIndex(ctx)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	again, _ := svc.TraceIndex(ctx)
	if first != again {
		t.Fatalf("expected cached index for unchanged version")
	}
	if _, _, err := svc.RegisterProducer(ctx, domain.Producer{Name: "Grower"}); err != nil {
		t.Fatalf("producer: %v", err)
	}
	next, _ := svc.TraceIndex(ctx)
	if next == first || next.Version() != 1 {
		t.Fatalf("expected rebuilt index at version 1, got %d", next.Version())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	rec.Observe(context.Background(), "close_day", true, 20*time.Millisecond)
	rec.Observe(context.Background(), "close_day", false, 5*time.Millisecond)
	rec.Observe(context.Background(), "close_day", true, 7*time.Millisecond)

	if got := testutil.ToFloat64(rec.results.WithLabelValues("close_day", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("close_day", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.duration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}

	again, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if again.results != rec.results {
		t.Fatalf("expected existing collectors to be reused")
	}
}

func TestZapLoggerAdapter(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(observed))
	logger.Debug("debug", "k", 1)
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error", "operation", "close_day")
	if logs.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", logs.Len())
	}
	last := logs.All()[3]
	if last.Level != zapcore.ErrorLevel || last.ContextMap()["operation"] != "close_day" {
		t.Fatalf("unexpected entry %+v", last)
	}
	NewZapLogger(nil).Info("discarded")
}

func TestNoopCollaborators(_ *testing.T) {
	noopLogger{}.Debug("d")
	noopLogger{}.Info("i")
	noopLogger{}.Warn("w")
	noopLogger{}.Error("e")
	noopAuditRecorder{}.Record(context.Background(), AuditEntry{})
	noopMetricsRecorder{}.Observe(context.Background(), "op", true, 0)
}

func TestLogAuditRecorderWritesInfo(t *testing.T) {
	logger := &captureLogger{}
	recorder := NewLogAuditRecorder(logger)
	svc := NewInMemoryService(nil, WithAuditRecorder(recorder))
	if _, _, err := svc.RegisterProducer(context.Background(), domain.Producer{ID: "P9", Name: "Finca Nueva"}); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	if !logger.has("i:audit") {
		t.Fatalf("expected audit entry to be logged, got %v", logger.calls)
	}
	NewLogAuditRecorder(nil).Record(context.Background(), AuditEntry{Error: "boom"})
}
