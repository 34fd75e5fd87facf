package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"almazara/internal/server/handlers"
)

// Handlers groups the HTTP adapters served by the router. Exports and
// Metrics are optional.
type Handlers struct {
	Trace     *handlers.TraceHandler
	Workflows *handlers.WorkflowHandler
	Exports   *handlers.ExportHandler
	Metrics   http.Handler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := r.Group("/api/v1")
	api.GET("/trace", h.Trace.Trace)
	api.GET("/trace/view", h.Trace.View)
	api.GET("/trace/document", h.Trace.Document)

	if h.Exports != nil {
		api.POST("/exports", h.Exports.Create)
		api.GET("/exports/:id", h.Exports.Get)
	}

	w := h.Workflows
	api.POST("/producers", w.RegisterProducer)
	api.POST("/customers", w.RegisterCustomer)
	api.POST("/tanks", w.RegisterTank)
	api.POST("/tanks/:id/reset", w.ResetTank)
	api.POST("/deliveries", w.RecordDelivery)
	api.POST("/hoppers/close", w.CloseHopper)
	api.POST("/days/close", w.CloseDay)
	api.POST("/nurse/transfers", w.TransferToNurseTank)
	api.POST("/packaging", w.RecordPackaging)
	api.POST("/bulk-exits", w.RecordBulkExit)
	api.POST("/sales-orders", w.RecordSalesOrder)
	api.POST("/aux/entries", w.RecordAuxEntry)
	api.GET("/aux/stock", w.AuxStock)
	api.GET("/snapshot", w.Snapshot)

	if logger != nil {
		logger.Info("router initialized")
	}
	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
