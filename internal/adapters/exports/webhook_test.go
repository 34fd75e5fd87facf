package exports

import (
	"context"
	"testing"
	"time"

	"almazara/internal/render"
	"almazara/internal/trace"
	"almazara/pkg/clients/webhook"
)

type captureSender struct{ events []webhook.ExportEvent }

func (c *captureSender) SendExportEvent(_ context.Context, e webhook.ExportEvent) error {
	c.events = append(c.events, e)
	return nil
}

func TestWebhookNotifierMapsRecord(t *testing.T) {
	sender := &captureSender{}
	done := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	err := WebhookNotifier{Sender: sender}.ExportCompleted(context.Background(), Record{
		ID:              "exp-1",
		Query:           "MT1/1",
		Start:           trace.Ref{Kind: trace.KindMillingLot, ID: "MT1/1"},
		SnapshotVersion: 4,
		Status:          StatusSucceeded,
		Artifacts:       []Artifact{{Key: "exports/exp-1/trace_MT1-1.xlsx", Format: render.FormatXLSX, SizeBytes: 512}},
		CompletedAt:     &done,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.events) != 1 {
		t.Fatalf("expected one event")
	}
	e := sender.events[0]
	if e.StartKind != "milling_lot" || e.Status != "succeeded" || !e.CompletedAt.Equal(done) || e.Artifacts[0].Format != "xlsx" {
		t.Fatalf("unexpected event %+v", e)
	}
}
