package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"almazara/internal/core"
	"almazara/pkg/domain"
)

// Workflows is the write side of the mill service.
type Workflows interface {
	RegisterProducer(ctx context.Context, producer domain.Producer) (domain.Producer, core.Result, error)
	RegisterCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, core.Result, error)
	RegisterTank(ctx context.Context, tank domain.Tank) (domain.Tank, core.Result, error)
	RecordDelivery(ctx context.Context, slip domain.DeliverySlip) (domain.DeliverySlip, core.Result, error)
	CloseHopper(ctx context.Context, in core.HopperClosure) (domain.MillingLot, bool, core.Result, error)
	CloseDay(ctx context.Context, in core.DayClosure) (domain.ProductionLot, bool, core.Result, error)
	TransferToNurseTank(ctx context.Context, in core.NurseTransfer) (domain.OilMovement, core.Result, error)
	ResetTank(ctx context.Context, in core.TankReset) (domain.Tank, core.Result, error)
	RecordPackaging(ctx context.Context, in core.PackagingRun) (domain.PackagingLot, core.Result, error)
	RecordBulkExit(ctx context.Context, exit domain.BulkExit) (domain.BulkExit, core.Result, error)
	RecordSalesOrder(ctx context.Context, order domain.SalesOrder) (domain.SalesOrder, core.Result, error)
	RecordAuxEntry(ctx context.Context, entry domain.AuxEntry) (domain.AuxEntry, core.Result, error)
	AuxStock(ctx context.Context) ([]core.AuxStockLine, error)
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// WorkflowHandler records mill operations.
type WorkflowHandler struct {
	svc    Workflows
	logger *zap.Logger
}

// NewWorkflowHandler constructs the HTTP handler adapter.
func NewWorkflowHandler(svc Workflows, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{svc: svc, logger: logger}
}

type writeResponse struct {
	Data     any                 `json:"data"`
	Created  *bool               `json:"created,omitempty"`
	Merged   *bool               `json:"merged,omitempty"`
	Warnings []violationResponse `json:"warnings"`
}

func (h *WorkflowHandler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.Warn("invalid workflow payload", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// write binds the request body into In and records it through op.
func write[In, Out any](h *WorkflowHandler, op func(context.Context, In) (Out, core.Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in In
		if !h.bind(c, &in) {
			return
		}
		out, res, err := op(c.Request.Context(), in)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusCreated, writeResponse{Data: out, Warnings: violations(core.Result{Violations: res.Warnings()})})
	}
}

// RegisterProducer handles POST /producers.
func (h *WorkflowHandler) RegisterProducer(c *gin.Context) { write(h, h.svc.RegisterProducer)(c) }

// RegisterCustomer handles POST /customers.
func (h *WorkflowHandler) RegisterCustomer(c *gin.Context) { write(h, h.svc.RegisterCustomer)(c) }

// RegisterTank handles POST /tanks.
func (h *WorkflowHandler) RegisterTank(c *gin.Context) { write(h, h.svc.RegisterTank)(c) }

// RecordDelivery handles POST /deliveries.
func (h *WorkflowHandler) RecordDelivery(c *gin.Context) { write(h, h.svc.RecordDelivery)(c) }

// TransferToNurseTank handles POST /nurse/transfers.
func (h *WorkflowHandler) TransferToNurseTank(c *gin.Context) {
	write(h, h.svc.TransferToNurseTank)(c)
}

// RecordPackaging handles POST /packaging.
func (h *WorkflowHandler) RecordPackaging(c *gin.Context) { write(h, h.svc.RecordPackaging)(c) }

// RecordBulkExit handles POST /bulk-exits.
func (h *WorkflowHandler) RecordBulkExit(c *gin.Context) { write(h, h.svc.RecordBulkExit)(c) }

// RecordSalesOrder handles POST /sales-orders.
func (h *WorkflowHandler) RecordSalesOrder(c *gin.Context) { write(h, h.svc.RecordSalesOrder)(c) }

// RecordAuxEntry handles POST /aux/entries.
func (h *WorkflowHandler) RecordAuxEntry(c *gin.Context) { write(h, h.svc.RecordAuxEntry)(c) }

// CloseHopper handles POST /hoppers/close. Closing an already milled
// counter answers 200 with created=false.
func (h *WorkflowHandler) CloseHopper(c *gin.Context) {
	var in core.HopperClosure
	if !h.bind(c, &in) {
		return
	}
	lot, created, res, err := h.svc.CloseHopper(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, writeResponse{Data: lot, Created: &created, Warnings: violations(core.Result{Violations: res.Warnings()})})
}

// CloseDay handles POST /days/close.
func (h *WorkflowHandler) CloseDay(c *gin.Context) {
	var in core.DayClosure
	if !h.bind(c, &in) {
		return
	}
	lot, merged, res, err := h.svc.CloseDay(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	c.JSON(status, writeResponse{Data: lot, Merged: &merged, Warnings: violations(core.Result{Violations: res.Warnings()})})
}

// ResetTank handles POST /tanks/:id/reset.
func (h *WorkflowHandler) ResetTank(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tank id"})
		return
	}
	var in core.TankReset
	if !h.bind(c, &in) {
		return
	}
	in.TankID = id
	tank, res, err := h.svc.ResetTank(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, writeResponse{Data: tank, Warnings: violations(core.Result{Violations: res.Warnings()})})
}

// AuxStock handles GET /aux/stock.
func (h *WorkflowHandler) AuxStock(c *gin.Context) {
	stock, err := h.svc.AuxStock(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stock})
}

// Snapshot handles GET /snapshot.
func (h *WorkflowHandler) Snapshot(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
