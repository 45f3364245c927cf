package orderflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"orderflow/internal/model"
	"orderflow/pkg/logger"
	"orderflow/pkg/metrics"
	"orderflow/pkg/otel"

	"go.uber.org/zap"
)

// phaseTitles 阶段对应的 current_milestone 展示名称
var phaseTitles = map[model.OrderPhase]string{
	model.PhasePlanning:    "Planning & Requirements",
	model.PhaseDesign:      "Design",
	model.PhaseDevelopment: "Development",
	model.PhaseTesting:     "Testing",
	model.PhaseDeployment:  "Deployment",
	model.PhaseReview:      "Client Review",
}

// PhaseTitle 阶段展示名称
func PhaseTitle(p model.OrderPhase) string {
	return phaseTitles[p]
}

// PhaseForStatus 没有进行中的计时记录时，由订单状态推断阶段
func PhaseForStatus(status model.OrderStatus) model.OrderPhase {
	switch status {
	case model.OrderStatusPending, model.OrderStatusApproved:
		return model.PhasePlanning
	case model.OrderStatusInProgress:
		return model.PhaseDevelopment
	case model.OrderStatusReview, model.OrderStatusRevisionRequested:
		return model.PhaseReview
	case model.OrderStatusCompleted, model.OrderStatusDelivered:
		return model.PhaseDeployment
	default:
		return model.PhasePlanning
	}
}

// elapsedMinutes 向下取整，不会为负
func elapsedMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d.Minutes()))
}

// StartPhase 结束当前阶段（如有）并开始新阶段，同一订单最多只有一条未结束的记录
func (s *Service) StartPhase(ctx context.Context, orderID int, phase model.OrderPhase) (*model.TimeTracking, error) {
	return s.startPhase(ctx, orderID, phase, false)
}

// EnsurePhase 与 StartPhase 相同，但当前已处于该阶段时直接返回进行中的记录。
// 用于可能被重复投递的消息处理。
func (s *Service) EnsurePhase(ctx context.Context, orderID int, phase model.OrderPhase) (*model.TimeTracking, error) {
	return s.startPhase(ctx, orderID, phase, true)
}

func (s *Service) startPhase(ctx context.Context, orderID int, phase model.OrderPhase, keepOpen bool) (*model.TimeTracking, error) {
	ctx, span := otel.StartSpan(ctx, "orderflow.StartPhase")
	var err error
	defer func() { otel.EndSpan(span, err) }()

	if !phase.Valid() {
		err = invalidInput("unknown phase %q", phase)
		return nil, err
	}
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int("order_id", orderID),
		zap.String("phase", string(phase)),
	)

	var (
		started *model.TimeTracking
		closed  *model.TimeTracking
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.LockOrder(ctx, orderID); err != nil {
			return err
		}
		now := s.now()

		if keepOpen {
			open, err := repo.GetOpenTimeTracking(ctx, orderID)
			if err != nil {
				return fmt.Errorf("get open time tracking: %w", err)
			}
			if open != nil && open.Phase == phase {
				started = open
				return nil
			}
		}

		var err error
		closed, err = closeOpenPhase(ctx, repo, orderID, now)
		if err != nil {
			return err
		}

		started = &model.TimeTracking{
			OrderID:   orderID,
			Phase:     phase,
			StartedAt: now,
		}
		if err := repo.InsertTimeTracking(ctx, started); err != nil {
			return fmt.Errorf("insert time tracking: %w", err)
		}
		if err := repo.UpdateCurrentMilestone(ctx, orderID, phaseTitles[phase], now); err != nil {
			return fmt.Errorf("update current milestone: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to start phase", zap.Error(err))
		return nil, err
	}

	if closed != nil {
		metrics.RecordPhaseDuration(string(closed.Phase), *closed.DurationMinutes)
		log.Info("Previous phase closed",
			zap.String("closed_phase", string(closed.Phase)),
			zap.Int("duration_minutes", *closed.DurationMinutes),
		)
	}
	s.cache.Invalidate(ctx, orderID)
	log.Info("Phase started")
	return started, nil
}

// CompletePhase 结束当前阶段；没有进行中的阶段时返回 ErrNoActivePhase
func (s *Service) CompletePhase(ctx context.Context, orderID int) (*model.TimeTracking, error) {
	ctx, span := otel.StartSpan(ctx, "orderflow.CompletePhase")
	var err error
	defer func() { otel.EndSpan(span, err) }()

	log := logger.WithTrace(ctx, s.logger).With(zap.Int("order_id", orderID))

	var closed *model.TimeTracking
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.LockOrder(ctx, orderID); err != nil {
			return err
		}
		var err error
		closed, err = closeOpenPhase(ctx, repo, orderID, s.now())
		if err != nil {
			return err
		}
		if closed == nil {
			return ErrNoActivePhase
		}
		return nil
	})
	if err != nil {
		log.Warn("Failed to complete phase", zap.Error(err))
		return nil, err
	}

	metrics.RecordPhaseDuration(string(closed.Phase), *closed.DurationMinutes)
	s.cache.Invalidate(ctx, orderID)
	log.Info("Phase completed",
		zap.String("phase", string(closed.Phase)),
		zap.Int("duration_minutes", *closed.DurationMinutes),
	)
	return closed, nil
}

func closeOpenPhase(ctx context.Context, repo Repository, orderID int, now time.Time) (*model.TimeTracking, error) {
	open, err := repo.GetOpenTimeTracking(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get open time tracking: %w", err)
	}
	if open == nil {
		return nil, nil
	}
	minutes := elapsedMinutes(open.StartedAt, now)
	if err := repo.CloseTimeTracking(ctx, open.ID, now, minutes); err != nil {
		return nil, fmt.Errorf("close time tracking %d: %w", open.ID, err)
	}
	open.EndedAt = &now
	open.DurationMinutes = &minutes
	return open, nil
}

// GetCurrentPhase 优先取进行中的计时记录，否则按订单状态推断
func (s *Service) GetCurrentPhase(ctx context.Context, orderID int) (model.OrderPhase, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	return currentPhase(ctx, s.store, order)
}

func currentPhase(ctx context.Context, repo Repository, order *model.Order) (model.OrderPhase, error) {
	open, err := repo.GetOpenTimeTracking(ctx, order.ID)
	if err != nil {
		return "", fmt.Errorf("get open time tracking: %w", err)
	}
	if open != nil {
		return open.Phase, nil
	}
	return PhaseForStatus(order.Status), nil
}
