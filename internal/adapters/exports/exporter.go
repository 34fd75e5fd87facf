// Package exports renders trace reports into documents asynchronously,
// storing the artifacts in the blob store.
package exports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"almazara/internal/blob"
	"almazara/internal/core"
	"almazara/internal/render"
	"almazara/internal/trace"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

const auditAction = "trace_export"

// ErrQueueFull is returned when the worker cannot accept more jobs.
var ErrQueueFull = errors.New("export queue full")

// ErrInvalidRequest marks enqueue requests rejected before queueing.
var ErrInvalidRequest = errors.New("invalid export request")

// Artifact is one stored document.
type Artifact struct {
	Key         string            `json:"key"`
	Format      render.Format     `json:"format"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID              string          `json:"id"`
	Query           string          `json:"query"`
	Start           trace.Ref       `json:"start"`
	SnapshotVersion uint64          `json:"snapshot_version"`
	Formats         []render.Format `json:"formats"`
	Layout          render.Layout   `json:"layout"`
	Status          Status          `json:"status"`
	Error           string          `json:"error,omitempty"`
	Artifacts       []Artifact      `json:"artifacts,omitempty"`
	RequestedBy     string          `json:"requested_by"`
	Reason          string          `json:"reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Input is an enqueue request.
type Input struct {
	Query       string
	Formats     []render.Format
	Layout      render.Layout
	RequestedBy string
	Reason      string
}

// Tracer resolves a free-text identifier into a lineage report.
type Tracer interface {
	Trace(ctx context.Context, query string) (trace.Report, error)
}

// Scheduler queues exports and exposes their status.
type Scheduler interface {
	EnqueueExport(ctx context.Context, input Input) (Record, error)
	GetExport(id string) (Record, bool)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures one export lifecycle transition.
type AuditEntry struct {
	ID         string         `json:"id"`
	ExportID   string         `json:"export_id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Query      string         `json:"query"`
	Status     Status         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Archiver keeps a durable copy of completed exports and the reports they
// were rendered from.
type Archiver interface {
	Archive(ctx context.Context, record Record, report trace.Report) error
}

// Notifier announces completed exports.
type Notifier interface {
	ExportCompleted(ctx context.Context, record Record) error
}

// Option configures optional worker collaborators.
type Option func(*Worker)

// WithArchiver archives completed exports.
func WithArchiver(a Archiver) Option { return func(w *Worker) { w.archiver = a } }

// WithNotifier announces completed exports.
func WithNotifier(n Notifier) Option { return func(w *Worker) { w.notifier = n } }

// WithLogger sets the worker logger.
func WithLogger(l core.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan exportTask, n)
		}
	}
}

// WithClock overrides the worker clock.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Worker executes exports on a background goroutine.
type Worker struct {
	tracer   Tracer
	store    blob.Store
	audit    AuditLogger
	archiver Archiver
	notifier Notifier
	logger   core.Logger
	now      func() time.Time

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id     string
	report trace.Report
}

// NewWorker constructs an export worker. store and audit may be nil.
func NewWorker(tracer Tracer, store blob.Store, audit AuditLogger, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		tracer: tracer,
		store:  store,
		audit:  audit,
		logger: nopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the running job to finish.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport resolves the query immediately, so the documents reflect the
// snapshot at request time, and schedules rendering.
func (w *Worker) EnqueueExport(ctx context.Context, input Input) (Record, error) {
	if w.tracer == nil {
		return Record{}, fmt.Errorf("export tracer not configured")
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return Record{}, fmt.Errorf("%w: query required", ErrInvalidRequest)
	}
	formats, err := normalizeFormats(input.Formats)
	if err != nil {
		return Record{}, err
	}
	layout := input.Layout
	if layout == "" {
		layout = render.LayoutSummary
	}
	if layout != render.LayoutSummary && layout != render.LayoutDetailed {
		return Record{}, fmt.Errorf("%w: layout %s", ErrInvalidRequest, layout)
	}
	report, err := w.tracer.Trace(ctx, query)
	if err != nil {
		return Record{}, err
	}

	now := w.now()
	record := Record{
		ID:              uuid.NewString(),
		Query:           query,
		Start:           report.Start,
		SnapshotVersion: report.SnapshotVersion,
		Formats:         formats,
		Layout:          layout,
		Status:          StatusQueued,
		RequestedBy:     input.RequestedBy,
		Reason:          input.Reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	w.mu.Lock()
	w.jobs[record.ID] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.record(ctx, queued, nil)

	select {
	case w.queue <- exportTask{id: record.ID, report: report}:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		rejected := queued
		rejected.Status = StatusFailed
		w.record(ctx, rejected, map[string]any{"error": ErrQueueFull.Error()})
		return Record{}, ErrQueueFull
	}
	return queued, nil
}

func normalizeFormats(formats []render.Format) ([]render.Format, error) {
	if len(formats) == 0 {
		return []render.Format{render.FormatPDF, render.FormatJSON}, nil
	}
	out := make([]render.Format, 0, len(formats))
	seen := make(map[render.Format]struct{}, len(formats))
	for _, f := range formats {
		parsed, err := render.ParseFormat(string(f))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if _, dup := seen[parsed]; dup {
			continue
		}
		seen[parsed] = struct{}{}
		out = append(out, parsed)
	}
	return out, nil
}

// GetExport returns a copy of the export record.
func (w *Worker) GetExport(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	w.transition(task.id, StatusRunning, "", nil)

	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		artifact, err := w.materialize(record, format, task.report)
		if err != nil {
			w.logger.Error("export failed", "export_id", task.id, "format", string(format), "error", err)
			w.transition(task.id, StatusFailed, err.Error(), nil)
			return
		}
		artifacts = append(artifacts, artifact)
	}
	done := w.transition(task.id, StatusSucceeded, "", artifacts)
	w.logger.Info("export completed", "export_id", task.id, "query", record.Query, "artifacts", len(artifacts))

	if w.archiver != nil {
		if err := w.archiver.Archive(w.ctx, done, task.report); err != nil {
			w.logger.Warn("export not archived", "export_id", task.id, "error", err)
		}
	}
	if w.notifier != nil {
		if err := w.notifier.ExportCompleted(w.ctx, done); err != nil {
			w.logger.Warn("export notification failed", "export_id", task.id, "error", err)
		}
	}
}

func (w *Worker) materialize(record Record, format render.Format, report trace.Report) (Artifact, error) {
	var buf bytes.Buffer
	if err := render.Write(&buf, report, format, record.Layout); err != nil {
		return Artifact{}, fmt.Errorf("render %s: %w", format, err)
	}
	artifact := Artifact{
		Key:         path.Join("exports", record.ID, render.FileName(report, format)),
		Format:      format,
		ContentType: format.ContentType(),
		SizeBytes:   int64(buf.Len()),
		Metadata: map[string]string{
			"export_id":        record.ID,
			"query":            record.Query,
			"start_kind":       string(report.Start.Kind),
			"start_id":         report.Start.ID,
			"snapshot_version": strconv.FormatUint(report.SnapshotVersion, 10),
			"layout":           string(record.Layout),
		},
		CreatedAt: w.now(),
	}
	if w.store == nil {
		return artifact, nil
	}
	info, err := w.store.Put(w.ctx, artifact.Key, &buf, blob.PutOptions{ContentType: artifact.ContentType, Metadata: artifact.Metadata})
	if err != nil {
		return Artifact{}, fmt.Errorf("store artifact: %w", err)
	}
	artifact.SizeBytes = info.Size
	artifact.URL = info.URL
	if url, err := w.store.PresignURL(w.ctx, info.Key, blob.SignedURLOptions{}); err == nil {
		artifact.URL = url
	}
	if !info.LastModified.IsZero() {
		artifact.CreatedAt = info.LastModified
	}
	return artifact, nil
}

// transition moves a job to status and audits it, returning the updated copy.
func (w *Worker) transition(id string, status Status, message string, artifacts []Artifact) Record {
	now := w.now()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return Record{}
	}
	record.Status = status
	record.Error = message
	record.UpdatedAt = now
	if artifacts != nil {
		record.Artifacts = artifacts
	}
	if status == StatusSucceeded || status == StatusFailed {
		record.CompletedAt = &now
	}
	updated := record.copy()
	w.mu.Unlock()

	var md map[string]any
	switch {
	case message != "":
		md = map[string]any{"error": message}
	case len(artifacts) > 0:
		md = map[string]any{"artifacts": len(artifacts)}
	}
	w.record(w.ctx, updated, md)
	return updated
}

func (w *Worker) record(ctx context.Context, r Record, md map[string]any) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		ExportID:   r.ID,
		Action:     auditAction,
		Actor:      r.RequestedBy,
		Query:      r.Query,
		Status:     r.Status,
		Reason:     r.Reason,
		Metadata:   md,
		OccurredAt: r.UpdatedAt,
	})
}

func (r Record) copy() Record {
	out := r
	out.Formats = append([]render.Format(nil), r.Formats...)
	if r.Artifacts != nil {
		out.Artifacts = make([]Artifact, len(r.Artifacts))
		for i, a := range r.Artifacts {
			a.Metadata = cloneStrings(a.Metadata)
			out.Artifacts[i] = a
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// MemoryAuditLog keeps audit entries in memory.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record implements AuditLogger.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}

// LogAuditLog writes export audit entries to a logger.
type LogAuditLog struct {
	Logger core.Logger
}

// Record implements AuditLogger.
func (l LogAuditLog) Record(_ context.Context, entry AuditEntry) {
	if l.Logger == nil {
		return
	}
	l.Logger.Info("export audit", "export_id", entry.ExportID, "status", string(entry.Status),
		"actor", entry.Actor, "query", entry.Query)
}
