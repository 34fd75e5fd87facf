package render

import (
	"context"
	"errors"

	"almazara/internal/trace"
)

// Resolver re-resolves a lineage report from a selected node.
type Resolver interface {
	Resolve(ctx context.Context, ref trace.Ref) (trace.Report, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref trace.Ref) (trace.Report, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, ref trace.Ref) (trace.Report, error) {
	return f(ctx, ref)
}

// IndexResolver resolves against a fixed index.
func IndexResolver(idx *trace.Index) Resolver {
	return ResolverFunc(func(_ context.Context, ref trace.Ref) (trace.Report, error) {
		return trace.Resolve(idx, ref), nil
	})
}

// ErrNoReport is returned when the navigator has nothing open.
var ErrNoReport = errors.New("render: no report open")

// Navigator walks the lineage graph one selected node at a time and keeps a
// back stack of previously shown reports. It is not safe for concurrent use.
type Navigator struct {
	resolver Resolver
	current  *trace.Report
	history  []trace.Report
}

// NewNavigator returns a navigator that resolves through r.
func NewNavigator(r Resolver) *Navigator {
	return &Navigator{resolver: r}
}

// Start shows report and clears the history.
func (n *Navigator) Start(report trace.Report) {
	n.current = &report
	n.history = n.history[:0]
}

// Open resolves ref and shows the result, pushing the current report onto
// the back stack. Selecting the node already shown is a no-op.
func (n *Navigator) Open(ctx context.Context, ref trace.Ref) (trace.Report, error) {
	if n.current != nil && n.current.Start == ref {
		return *n.current, nil
	}
	report, err := n.resolver.Resolve(ctx, ref)
	if err != nil {
		return trace.Report{}, err
	}
	if n.current != nil {
		n.history = append(n.history, *n.current)
	}
	n.current = &report
	return report, nil
}

// Back returns to the previous report. It reports false when the history is empty.
func (n *Navigator) Back() (trace.Report, bool) {
	if len(n.history) == 0 {
		return trace.Report{}, false
	}
	last := len(n.history) - 1
	prev := n.history[last]
	n.history = n.history[:last]
	n.current = &prev
	return prev, true
}

// Current returns the report being shown.
func (n *Navigator) Current() (trace.Report, error) {
	if n.current == nil {
		return trace.Report{}, ErrNoReport
	}
	return *n.current, nil
}

// Depth returns the number of reports on the back stack.
func (n *Navigator) Depth() int { return len(n.history) }
