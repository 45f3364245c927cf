package handler

import (
	"errors"
	"net/http"

	"orderflow/internal/auth"
	"orderflow/internal/orderflow"
	"orderflow/internal/schedule"
	"orderflow/pkg/circuitbreaker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor 业务错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, orderflow.ErrOrderNotFound),
		errors.Is(err, orderflow.ErrQualityCheckNotFound):
		return http.StatusNotFound
	case errors.Is(err, orderflow.ErrInvalidTransition),
		errors.Is(err, orderflow.ErrNoActivePhase),
		errors.Is(err, orderflow.ErrQualityCheckFinal):
		return http.StatusConflict
	case errors.Is(err, orderflow.ErrInvalidInput),
		errors.Is(err, orderflow.ErrInvalidProjectType),
		errors.Is(err, schedule.ErrInvalidPattern):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+": failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	logger.Warn(op+": rejected", zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}
