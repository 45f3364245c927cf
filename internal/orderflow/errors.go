package orderflow

import (
	"errors"
	"fmt"

	"orderflow/internal/model"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrQualityCheckNotFound = errors.New("quality check not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNoActivePhase        = errors.New("no active phase for order")
	ErrQualityCheckFinal    = errors.New("quality check already completed")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidProjectType   = errors.New("invalid project type")
	ErrEvaluationFailed     = errors.New("automated evaluation failed")
)

// TransitionError 描述被拒绝的状态流转，errors.Is(err, ErrInvalidTransition) 为 true
type TransitionError struct {
	From model.OrderStatus
	To   model.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
