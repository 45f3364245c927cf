package orderflow

import (
	"context"
	"fmt"

	"orderflow/contracts/mq"
	"orderflow/internal/model"
	"orderflow/pkg/circuitbreaker"
	"orderflow/pkg/logger"
	"orderflow/pkg/metrics"
	pkgmq "orderflow/pkg/mq"
	"orderflow/pkg/otel"
	"orderflow/pkg/trace"

	"go.uber.org/zap"
)

// EvaluationResult 一次质检的结果
type EvaluationResult struct {
	Status model.QualityStatus `json:"status"`
	Score  *int                `json:"score,omitempty"`
	Notes  string              `json:"notes"`
}

// Evaluator 自动质检评估器
type Evaluator interface {
	Evaluate(ctx context.Context, order *model.Order, checkType model.QualityCheckType) (EvaluationResult, error)
}

// CannedEvaluator 返回固定结果，不做真实分析
type CannedEvaluator struct{}

func (CannedEvaluator) Evaluate(_ context.Context, _ *model.Order, checkType model.QualityCheckType) (EvaluationResult, error) {
	switch checkType {
	case model.QualityCheckCodeReview:
		return passed(88, "Code review passed: no blocking findings, style and complexity within limits"), nil
	case model.QualityCheckFunctionalTest:
		return passed(92, "Functional tests passed: all acceptance scenarios green"), nil
	case model.QualityCheckSecurityAudit:
		return passed(90, "Security audit passed: no critical or high severity issues"), nil
	default:
		return passed(85, "Automated check passed"), nil
	}
}

func passed(score int, notes string) EvaluationResult {
	return EvaluationResult{Status: model.QualityStatusPassed, Score: &score, Notes: notes}
}

// BreakerEvaluator 用熔断器包装评估器
type BreakerEvaluator struct {
	next    Evaluator
	breaker *circuitbreaker.CircuitBreaker
}

func NewBreakerEvaluator(next Evaluator, cfg circuitbreaker.Config) *BreakerEvaluator {
	return &BreakerEvaluator{next: next, breaker: circuitbreaker.NewCircuitBreaker(cfg)}
}

func (e *BreakerEvaluator) Evaluate(ctx context.Context, order *model.Order, checkType model.QualityCheckType) (EvaluationResult, error) {
	var result EvaluationResult
	err := e.breaker.Execute(func() error {
		var err error
		result, err = e.next.Evaluate(ctx, order, checkType)
		return err
	})
	return result, err
}

// State 熔断器当前状态
func (e *BreakerEvaluator) State() circuitbreaker.State {
	return e.breaker.GetState()
}

// PerformQualityCheck 创建质检记录；自动质检会立即评估并写回结果。
// 评估在事务外执行，评估失败时记录保持 IN_PROGRESS 并返回错误。
func (s *Service) PerformQualityCheck(ctx context.Context, orderID int, checkType model.QualityCheckType, automated bool) (*model.QualityCheck, error) {
	ctx, span := otel.StartSpan(ctx, "orderflow.PerformQualityCheck")
	var err error
	defer func() { otel.EndSpan(span, err) }()

	if !checkType.Valid() {
		err = invalidInput("unknown quality check type %q", checkType)
		return nil, err
	}
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int("order_id", orderID),
		zap.String("check_type", string(checkType)),
		zap.Bool("automated", automated),
	)

	var (
		check *model.QualityCheck
		order *model.Order
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		order, err = repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now()
		check = &model.QualityCheck{
			OrderID:   orderID,
			CheckType: checkType,
			Automated: automated,
			Status:    model.QualityStatusInProgress,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.InsertQualityCheck(ctx, check); err != nil {
			return fmt.Errorf("insert quality check: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to create quality check", zap.Error(err))
		return nil, err
	}
	s.cache.Invalidate(ctx, orderID)

	if !automated {
		log.Info("Manual quality check created", zap.Int("check_id", check.ID))
		return check, nil
	}

	result, evalErr := s.evaluator.Evaluate(ctx, order, checkType)
	if evalErr != nil {
		err = fmt.Errorf("%w: %s: %w", ErrEvaluationFailed, checkType, evalErr)
		log.Warn("Automated evaluation failed, check left in progress",
			zap.Int("check_id", check.ID),
			zap.Error(evalErr),
		)
		return check, err
	}

	if err = s.recordResult(ctx, check, result); err != nil {
		log.Error("Failed to record quality check result", zap.Int("check_id", check.ID), zap.Error(err))
		return check, err
	}
	log.Info("Automated quality check completed",
		zap.Int("check_id", check.ID),
		zap.String("status", string(check.Status)),
	)
	return check, nil
}

// CompleteQualityCheck 记录人工评审结果，只能写一次
func (s *Service) CompleteQualityCheck(ctx context.Context, checkID int, result EvaluationResult) (*model.QualityCheck, error) {
	ctx, span := otel.StartSpan(ctx, "orderflow.CompleteQualityCheck")
	var err error
	defer func() { otel.EndSpan(span, err) }()

	if !result.Status.Final() {
		err = invalidInput("status must be PASSED, FAILED or WAIVED, got %q", result.Status)
		return nil, err
	}
	if result.Score != nil && (*result.Score < 0 || *result.Score > 100) {
		err = invalidInput("score must be between 0 and 100")
		return nil, err
	}

	check, err := s.store.GetQualityCheck(ctx, checkID)
	if err != nil {
		return nil, err
	}
	if err = s.recordResult(ctx, check, result); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to complete quality check",
			zap.Int("check_id", checkID),
			zap.Error(err),
		)
		return nil, err
	}
	return check, nil
}

// recordResult 在事务中写回结果并追加 quality_check.completed 事件
func (s *Service) recordResult(ctx context.Context, check *model.QualityCheck, result EvaluationResult) error {
	ctx, traceID := trace.Ensure(ctx)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.LockOrder(ctx, check.OrderID); err != nil {
			return err
		}
		current, err := repo.GetQualityCheck(ctx, check.ID)
		if err != nil {
			return err
		}
		if current.Status.Final() {
			return ErrQualityCheckFinal
		}

		now := s.now()
		current.Status = result.Status
		current.Score = result.Score
		current.Notes = result.Notes
		current.CompletedAt = &now
		current.UpdatedAt = now
		if err := repo.UpdateQualityCheckResult(ctx, current); err != nil {
			return fmt.Errorf("update quality check: %w", err)
		}

		payload := mq.QualityCheckCompletedPayload{
			CheckID:   current.ID,
			OrderID:   current.OrderID,
			CheckType: string(current.CheckType),
			Automated: current.Automated,
			Status:    string(current.Status),
			Score:     current.Score,
			At:        now,
			TraceID:   traceID,
		}
		if err := repo.AppendEvent(ctx, current.OrderID, pkgmq.RoutingQualityCheckCompleted, payload); err != nil {
			return fmt.Errorf("append quality check event: %w", err)
		}
		*check = *current
		return nil
	})
	if err != nil {
		return err
	}

	metrics.RecordQualityCheck(string(check.CheckType), string(check.Status), check.Automated)
	s.cache.Invalidate(ctx, check.OrderID)
	return nil
}
