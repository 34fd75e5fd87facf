package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"almazara/internal/render"
	"almazara/internal/trace"
)

// Tracer resolves identifiers and entity references into lineage reports.
type Tracer interface {
	Trace(ctx context.Context, query string) (trace.Report, error)
	Resolve(ctx context.Context, ref trace.Ref) (trace.Report, error)
}

// TraceHandler serves lineage reports, their section views and documents.
type TraceHandler struct {
	svc    Tracer
	logger *zap.Logger
}

// NewTraceHandler constructs the HTTP handler adapter.
func NewTraceHandler(svc Tracer, logger *zap.Logger) *TraceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TraceHandler{svc: svc, logger: logger}
}

var errMissingQuery = errors.New("query parameter q or kind and id required")

// report reads either ?q=<identifier> or ?kind=<kind>&id=<id>. The second
// form follows the links of a rendered view.
func (h *TraceHandler) report(c *gin.Context) (trace.Report, error) {
	ctx := c.Request.Context()
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		return h.svc.Trace(ctx, q)
	}
	kind, id := strings.TrimSpace(c.Query("kind")), strings.TrimSpace(c.Query("id"))
	if kind == "" || id == "" {
		return trace.Report{}, errMissingQuery
	}
	return h.svc.Resolve(ctx, trace.Ref{Kind: trace.Kind(kind), ID: id})
}

func (h *TraceHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, errMissingQuery) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respondError(c, h.logger, err)
}

// Trace returns the raw lineage report.
func (h *TraceHandler) Trace(c *gin.Context) {
	report, err := h.report(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// View returns the report arranged into display sections.
func (h *TraceHandler) View(c *gin.Context) {
	report, err := h.report(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, render.BuildView(report))
}

// Document renders the report as a downloadable file.
func (h *TraceHandler) Document(c *gin.Context) {
	format, err := render.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	layout, err := render.ParseLayout(c.Query("layout"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.report(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := render.Write(&buf, report, format, layout); err != nil {
		respondError(c, h.logger, fmt.Errorf("render %s: %w", format, err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", render.FileName(report, format)))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
