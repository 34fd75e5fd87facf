// Package handlers adapts the mill service to HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"almazara/internal/adapters/exports"
	"almazara/internal/core"
	"almazara/internal/trace"
	"almazara/pkg/domain"
)

type violationResponse struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id,omitempty"`
}

func violations(res domain.Result) []violationResponse {
	out := make([]violationResponse, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, violationResponse{
			Rule:     v.Rule,
			Severity: string(v.Severity),
			Message:  v.Message,
			Entity:   string(v.Entity),
			EntityID: v.EntityID,
		})
	}
	return out
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var notFound core.ErrNotFound
	var blocked domain.RuleViolationError
	switch {
	case errors.Is(err, trace.ErrNotFound), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &blocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrInsufficientQuantity), errors.Is(err, exports.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, exports.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	var blocked domain.RuleViolationError
	if errors.As(err, &blocked) {
		body["violations"] = violations(blocked.Result)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		if status == http.StatusInternalServerError {
			body["error"] = "internal error"
		}
	} else {
		logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}
