package core

import (
	"context"
	"sync"
	"time"

	"almazara/pkg/domain"
)

func date(y, m, d int) domain.Date {
	return domain.NewDate(y, time.Month(m), d)
}

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) add(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, entry)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d:" + msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i:" + msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w:" + msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e:" + msg) }

func (c *captureLogger) has(entry string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == entry {
			return true
		}
	}
	return false
}

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

// millFixture registers producer P1, customer C1 and tank 3 (20000 kg).
func millFixture(svc *Service) error {
	ctx := context.Background()
	if _, _, err := svc.RegisterProducer(ctx, domain.Producer{ID: "P1", Name: "Cortijo El Olivar"}); err != nil {
		return err
	}
	if _, _, err := svc.RegisterCustomer(ctx, domain.Customer{ID: "C1", Name: "Ultramarinos Sur", Type: domain.CustomerRetail}); err != nil {
		return err
	}
	_, _, err := svc.RegisterTank(ctx, domain.Tank{ID: 3, CapacityKg: 20000})
	return err
}

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC) })
}
