// Package webhook posts export notifications to an HTTP endpoint.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Artifact describes one stored document in a notification.
type Artifact struct {
	Key         string `json:"key"`
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url,omitempty"`
}

// ExportEvent is the payload sent when an export completes.
type ExportEvent struct {
	Event           string     `json:"event"`
	ExportID        string     `json:"export_id"`
	Query           string     `json:"query"`
	StartKind       string     `json:"start_kind"`
	StartID         string     `json:"start_id"`
	SnapshotVersion uint64     `json:"snapshot_version"`
	Status          string     `json:"status"`
	Artifacts       []Artifact `json:"artifacts"`
	CompletedAt     time.Time  `json:"completed_at"`
}

// Config holds the endpoint settings.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
	Retries int
}

// Client is a resty-backed webhook sender.
type Client struct {
	httpClient *resty.Client
	url        string
}

type apiError struct {
	Error string `json:"error"`
}

// NewClient builds a webhook client. Requests carry the token as a bearer
// credential when one is configured.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}
	return &Client{httpClient: rc, url: strings.TrimSpace(cfg.URL)}
}

// SendExportEvent posts event to the configured URL.
func (c *Client) SendExportEvent(ctx context.Context, event ExportEvent) error {
	if c.url == "" {
		return fmt.Errorf("webhook url not configured")
	}
	if event.Event == "" {
		event.Event = "export.completed"
	}
	apiErr := new(apiError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(event).
		SetError(apiErr).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("webhook error: code=%d, message=%s", resp.StatusCode(), apiErr.Error)
	}
	return nil
}
