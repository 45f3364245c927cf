package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"orderflow/internal/auth"
	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/internal/schedule"
	"orderflow/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{orderflow.ErrOrderNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", orderflow.ErrQualityCheckNotFound), http.StatusNotFound},
		{&orderflow.TransitionError{From: model.OrderStatusPending, To: model.OrderStatusDelivered}, http.StatusConflict},
		{orderflow.ErrNoActivePhase, http.StatusConflict},
		{orderflow.ErrQualityCheckFinal, http.StatusConflict},
		{orderflow.ErrInvalidProjectType, http.StatusBadRequest},
		{fmt.Errorf("%w: bad", orderflow.ErrInvalidInput), http.StatusBadRequest},
		{schedule.ErrInvalidPattern, http.StatusBadRequest},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{circuitbreaker.ErrCircuitBreakerOpen, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: CODE_REVIEW: %w", orderflow.ErrEvaluationFailed, circuitbreaker.ErrCircuitBreakerOpen), http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
