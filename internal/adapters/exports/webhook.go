package exports

import (
	"context"
	"time"

	"almazara/pkg/clients/webhook"
)

// WebhookSender posts export events.
type WebhookSender interface {
	SendExportEvent(ctx context.Context, event webhook.ExportEvent) error
}

// WebhookNotifier announces completed exports through a webhook.
type WebhookNotifier struct {
	Sender WebhookSender
}

// ExportCompleted implements Notifier.
func (n WebhookNotifier) ExportCompleted(ctx context.Context, r Record) error {
	event := webhook.ExportEvent{
		ExportID:        r.ID,
		Query:           r.Query,
		StartKind:       string(r.Start.Kind),
		StartID:         r.Start.ID,
		SnapshotVersion: r.SnapshotVersion,
		Status:          string(r.Status),
		Artifacts:       make([]webhook.Artifact, 0, len(r.Artifacts)),
	}
	if r.CompletedAt != nil {
		event.CompletedAt = *r.CompletedAt
	} else {
		event.CompletedAt = time.Now().UTC()
	}
	for _, a := range r.Artifacts {
		event.Artifacts = append(event.Artifacts, webhook.Artifact{
			Key: a.Key, Format: string(a.Format), ContentType: a.ContentType, SizeBytes: a.SizeBytes, URL: a.URL,
		})
	}
	return n.Sender.SendExportEvent(ctx, event)
}
