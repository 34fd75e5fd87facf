package exports

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"almazara/internal/blob"
	"almazara/internal/render"
	"almazara/internal/trace"
	"almazara/pkg/domain"
)

func fixtureSnapshot() domain.Snapshot {
	d := domain.NewDate(2026, time.January, 14)
	return domain.Snapshot{
		Version:   3,
		Producers: []domain.Producer{{ID: "P1", Name: "Cortijo El Olivar"}},
		DeliverySlips: []domain.DeliverySlip{{
			ID: 1, Date: d, ProducerID: "P1", Variety: "Picual", NetKg: 500,
			Analysis: domain.LabAnalysis{FatYield: 18.5}, Type: domain.SlipMilling,
			Status: domain.SlipMilled, HopperID: 1, MillingLotID: "MT1/1",
		}},
		MillingLots: []domain.MillingLot{{
			ID: "MT1/1", HopperID: 1, UseCounter: 1, Date: d, InputKg: 500,
			ExpectedOilKg: 92.5, ActualOilKg: 92.5, TankID: 3, SlipIDs: []int{1},
		}},
		ProductionLots: []domain.ProductionLot{{ID: "LP-150126", Date: d, MillingLotIDs: []string{"MT1/1"}, OliveKg: 500, OilKg: 92.5, TankID: 3}},
		Tanks:          []domain.Tank{{ID: 3, CapacityKg: 20000, CurrentKg: 92.5, Status: domain.TankFilling}},
	}
}

type snapshotTracer struct{ snap domain.Snapshot }

func (s snapshotTracer) Trace(_ context.Context, query string) (trace.Report, error) {
	return trace.Lookup(s.snap, query)
}

type recordingArchiver struct {
	mu      sync.Mutex
	records []Record
}

func (a *recordingArchiver) Archive(_ context.Context, r Record, report trace.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if report.Start.ID == "" {
		return errors.New("empty report")
	}
	a.records = append(a.records, r)
	return nil
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

type failingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *failingNotifier) ExportCompleted(context.Context, Record) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return errors.New("webhook down")
}

func (n *failingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type failingPutStore struct{ blob.Store }

func (failingPutStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("bucket unavailable")
}

func waitForStatus(t *testing.T, w *Worker, id string, want Status) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rec, ok := w.GetExport(id); ok && rec.Status == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, _ := w.GetExport(id)
	t.Fatalf("export %s did not reach %s, last %+v", id, want, rec)
	return Record{}
}

func TestWorkerRendersStoresAndArchives(t *testing.T) {
	store := blob.NewMemory()
	audit := &MemoryAuditLog{}
	archiver := &recordingArchiver{}
	notifier := &failingNotifier{}
	w := NewWorker(snapshotTracer{fixtureSnapshot()}, store, audit, WithArchiver(archiver), WithNotifier(notifier))
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()

	rec, err := w.EnqueueExport(context.Background(), Input{
		Query:       " lp-150126 ",
		Formats:     []render.Format{render.FormatCSV, render.FormatXLSX, "CSV"},
		Layout:      render.LayoutDetailed,
		RequestedBy: "quality",
		Reason:      "customer complaint",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if rec.Status != StatusQueued || rec.Start.ID != "LP-150126" || rec.SnapshotVersion != 3 || len(rec.Formats) != 2 {
		t.Fatalf("unexpected queued record %+v", rec)
	}

	done := waitForStatus(t, w, rec.ID, StatusSucceeded)
	if len(done.Artifacts) != 2 || done.CompletedAt == nil {
		t.Fatalf("unexpected completed record %+v", done)
	}
	for _, a := range done.Artifacts {
		if !strings.HasPrefix(a.Key, "exports/"+rec.ID+"/trace_LP-150126.") {
			t.Fatalf("unexpected artifact key %s", a.Key)
		}
		info, err := store.Head(context.Background(), a.Key)
		if err != nil || info.Size == 0 || info.Metadata["start_kind"] != string(trace.KindProductionLot) {
			t.Fatalf("artifact %s not stored: %+v %v", a.Key, info, err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for (archiver.count() == 0 || notifier.count() == 0) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if archiver.count() != 1 || notifier.count() != 1 {
		t.Fatalf("expected archive and notification, got %d %d", archiver.count(), notifier.count())
	}

	var statuses []Status
	for _, e := range audit.Entries() {
		if e.ExportID == rec.ID {
			statuses = append(statuses, e.Status)
		}
	}
	if len(statuses) != 3 || statuses[0] != StatusQueued || statuses[1] != StatusRunning || statuses[2] != StatusSucceeded {
		t.Fatalf("unexpected audit trail %v", statuses)
	}
}

func TestWorkerRejectsBadRequests(t *testing.T) {
	w := NewWorker(snapshotTracer{fixtureSnapshot()}, nil, nil)
	ctx := context.Background()
	if _, err := w.EnqueueExport(ctx, Input{Query: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for empty query, got %v", err)
	}
	if _, err := w.EnqueueExport(ctx, Input{Query: "MT1/1", Formats: []render.Format{"docx"}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid format, got %v", err)
	}
	if _, err := w.EnqueueExport(ctx, Input{Query: "MT1/1", Layout: "poster"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid layout, got %v", err)
	}
	if _, err := w.EnqueueExport(ctx, Input{Query: "LP-999999"}); !errors.Is(err, trace.ErrNotFound) {
		t.Fatalf("expected trace not found, got %v", err)
	}
	if _, err := NewWorker(nil, nil, nil).EnqueueExport(ctx, Input{Query: "MT1/1"}); err == nil {
		t.Fatalf("expected missing tracer error")
	}
}

func TestWorkerQueueFull(t *testing.T) {
	audit := &MemoryAuditLog{}
	w := NewWorker(snapshotTracer{fixtureSnapshot()}, nil, audit, WithQueueSize(1))
	ctx := context.Background()
	first, err := w.EnqueueExport(ctx, Input{Query: "MT1/1"})
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if first.Formats[0] != render.FormatPDF || first.Formats[1] != render.FormatJSON || first.Layout != render.LayoutSummary {
		t.Fatalf("unexpected defaults %+v", first)
	}
	if _, err := w.EnqueueExport(ctx, Input{Query: "MT1/1"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
	entries := audit.Entries()
	if last := entries[len(entries)-1]; last.Status != StatusFailed {
		t.Fatalf("expected rejected export to be audited as failed, got %+v", last)
	}
}

func TestWorkerFailsWhenStoreRejects(t *testing.T) {
	logger := &captureLogger{}
	w := NewWorker(snapshotTracer{fixtureSnapshot()}, failingPutStore{blob.NewMemory()}, nil, WithLogger(logger))
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()
	rec, err := w.EnqueueExport(context.Background(), Input{Query: "1", Formats: []render.Format{render.FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	failed := waitForStatus(t, w, rec.ID, StatusFailed)
	if !strings.Contains(failed.Error, "bucket unavailable") {
		t.Fatalf("unexpected error %q", failed.Error)
	}
	if !logger.has("export failed") {
		t.Fatalf("expected failure to be logged")
	}
}

func TestWorkerWithoutStoreKeepsArtifactsInRecord(t *testing.T) {
	fixed := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	w := NewWorker(snapshotTracer{fixtureSnapshot()}, nil, nil, WithClock(func() time.Time { return fixed }))
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()
	rec, err := w.EnqueueExport(context.Background(), Input{Query: "MT1/1", Formats: []render.Format{render.FormatPDF}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitForStatus(t, w, rec.ID, StatusSucceeded)
	if len(done.Artifacts) != 1 || done.Artifacts[0].SizeBytes == 0 || !done.Artifacts[0].CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected artifacts %+v", done.Artifacts)
	}
	if _, ok := w.GetExport("missing"); ok {
		t.Fatalf("expected unknown export to be absent")
	}
}

func TestStopHonoursContext(t *testing.T) {
	w := NewWorker(nil, nil, nil)
	w.Start()
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

type captureLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureLogger) add(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add(msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add(msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add(msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add(msg) }

func (c *captureLogger) has(msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.msgs {
		if m == msg {
			return true
		}
	}
	return false
}
