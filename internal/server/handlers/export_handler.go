package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"almazara/internal/adapters/exports"
	"almazara/internal/render"
)

// ExportHandler queues document exports and reports their progress.
type ExportHandler struct {
	scheduler exports.Scheduler
	logger    *zap.Logger
}

// NewExportHandler constructs the HTTP handler adapter.
func NewExportHandler(scheduler exports.Scheduler, logger *zap.Logger) *ExportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{scheduler: scheduler, logger: logger}
}

type exportRequest struct {
	Query       string   `json:"query"`
	Formats     []string `json:"formats"`
	Layout      string   `json:"layout"`
	RequestedBy string   `json:"requested_by"`
	Reason      string   `json:"reason"`
}

// Create queues an export and answers 202 with the queued record.
func (h *ExportHandler) Create(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid export payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	input := exports.Input{
		Query:       req.Query,
		Layout:      render.Layout(req.Layout),
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
	}
	for _, f := range req.Formats {
		input.Formats = append(input.Formats, render.Format(f))
	}
	record, err := h.scheduler.EnqueueExport(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Header("Location", "/api/v1/exports/"+record.ID)
	c.JSON(http.StatusAccepted, record)
}

// Get returns the export record with the given id.
func (h *ExportHandler) Get(c *gin.Context) {
	record, ok := h.scheduler.GetExport(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "export not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}
