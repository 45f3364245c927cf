package orderflow

import (
	"context"
	"errors"
	"fmt"

	"orderflow/contracts/mq"
	"orderflow/internal/model"
	"orderflow/pkg/logger"
	"orderflow/pkg/metrics"
	pkgmq "orderflow/pkg/mq"
	"orderflow/pkg/otel"
	"orderflow/pkg/trace"

	"go.uber.org/zap"
)

// transitions 合法的状态流转；CANCELLED 单独处理
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:           {model.OrderStatusApproved},
	model.OrderStatusApproved:          {model.OrderStatusInProgress},
	model.OrderStatusInProgress:        {model.OrderStatusReview},
	model.OrderStatusReview:            {model.OrderStatusRevisionRequested, model.OrderStatusCompleted},
	model.OrderStatusRevisionRequested: {model.OrderStatusInProgress},
	model.OrderStatusCompleted:         {model.OrderStatusDelivered},
}

// CanTransition 判断 from -> to 是否合法
func CanTransition(from, to model.OrderStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == model.OrderStatusCancelled {
		return from != model.OrderStatusCancelled
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// progressByStatus 进度只由状态决定，与里程碑完成比例无关
var progressByStatus = map[model.OrderStatus]int{
	model.OrderStatusPending:           0,
	model.OrderStatusApproved:          10,
	model.OrderStatusInProgress:        50,
	model.OrderStatusReview:            80,
	model.OrderStatusRevisionRequested: 70,
	model.OrderStatusCompleted:         100,
	model.OrderStatusDelivered:         100,
	model.OrderStatusCancelled:         0,
}

// ProgressFor 状态对应的进度百分比
func ProgressFor(status model.OrderStatus) int {
	return progressByStatus[status]
}

// completedMilestones 进入某状态时需要完成的里程碑类型
var completedMilestones = map[model.OrderStatus][]model.OrderMilestoneType{
	model.OrderStatusApproved:   {model.MilestoneRequirementsGathering},
	model.OrderStatusInProgress: {model.MilestoneDesignApproval},
	model.OrderStatusReview:     {model.MilestoneDevelopment, model.MilestoneTesting},
	model.OrderStatusCompleted:  {model.MilestoneQualityAssurance},
	model.OrderStatusDelivered:  {model.MilestoneFinalDelivery},
}

// StatusChange 一次状态变更请求
type StatusChange struct {
	Status   model.OrderStatus         `json:"status"`
	Trigger  model.StatusUpdateTrigger `json:"trigger"`
	Metadata map[string]any            `json:"metadata"`
}

// UpdateStatus 校验并执行状态流转。
// 状态、进度、审计记录、里程碑完成和 outbox 事件在同一个事务中写入。
func (s *Service) UpdateStatus(ctx context.Context, orderID int, change StatusChange) (*model.Order, error) {
	ctx, span := otel.StartSpan(ctx, "orderflow.UpdateStatus")
	var err error
	defer func() { otel.EndSpan(span, err) }()

	if change.Trigger == "" {
		change.Trigger = model.TriggerManual
	}
	if !change.Trigger.Valid() {
		err = invalidInput("unknown trigger %q", change.Trigger)
		return nil, err
	}
	if !change.Status.Valid() {
		err = invalidInput("unknown status %q", change.Status)
		return nil, err
	}

	ctx, traceID := trace.Ensure(ctx)
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int("order_id", orderID),
		zap.String("to", string(change.Status)),
		zap.String("trigger", string(change.Trigger)),
	)

	var (
		updated   *model.Order
		oldStatus model.OrderStatus
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		oldStatus = order.Status
		if !CanTransition(order.Status, change.Status) {
			return &TransitionError{From: order.Status, To: change.Status}
		}

		now := s.now()
		progress := ProgressFor(change.Status)
		if err := repo.UpdateOrderStatus(ctx, orderID, change.Status, progress, now); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		if err := repo.InsertStatusUpdate(ctx, &model.StatusUpdate{
			OrderID:   orderID,
			OldStatus: order.Status,
			NewStatus: change.Status,
			Trigger:   change.Trigger,
			Metadata:  change.Metadata,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("insert status update: %w", err)
		}

		label, err := s.completeMilestonesFor(ctx, repo, orderID, change.Status)
		if err != nil {
			return err
		}
		if label != "" {
			if err := repo.UpdateCurrentMilestone(ctx, orderID, label, now); err != nil {
				return fmt.Errorf("update current milestone: %w", err)
			}
			order.CurrentMilestone = label
		}

		payload := mq.OrderStatusChangedPayload{
			OrderID:     orderID,
			ClientID:    order.ClientID,
			ProjectType: string(order.ProjectType),
			OldStatus:   string(order.Status),
			NewStatus:   string(change.Status),
			Trigger:     string(change.Trigger),
			Progress:    progress,
			Metadata:    change.Metadata,
			ChangedAt:   now,
			TraceID:     traceID,
		}
		if err := repo.AppendEvent(ctx, orderID, pkgmq.RoutingOrderStatusChanged, payload); err != nil {
			return fmt.Errorf("append status event: %w", err)
		}

		order.Status = change.Status
		order.Progress = progress
		order.UpdatedAt = now
		updated = order
		return nil
	})
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			metrics.RecordInvalidTransition(string(te.From), string(te.To))
			log.Warn("Rejected status transition", zap.String("from", string(te.From)))
		} else {
			log.Error("Failed to update order status", zap.Error(err))
		}
		return nil, err
	}

	metrics.RecordStatusTransition(string(oldStatus), string(change.Status), string(change.Trigger))
	s.cache.Invalidate(ctx, orderID)
	log.Info("Order status updated",
		zap.String("from", string(oldStatus)),
		zap.Int("progress", updated.Progress),
	)
	return updated, nil
}

// completeMilestonesFor 完成新状态对应的里程碑，并把下一个 PENDING 里程碑置为进行中。
// 返回新的当前里程碑标题，没有变化时返回空串。
func (s *Service) completeMilestonesFor(ctx context.Context, repo Repository, orderID int, status model.OrderStatus) (string, error) {
	types := completedMilestones[status]
	if len(types) == 0 {
		return "", nil
	}
	milestones, err := repo.ListMilestones(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("list milestones: %w", err)
	}

	now := s.now()
	note := fmt.Sprintf("Completed automatically when order moved to %s", status)
	changed := false
	for i := range milestones {
		m := &milestones[i]
		if m.Status == model.MilestoneStatusCompleted || !containsType(types, m.Type) {
			continue
		}
		if err := repo.UpdateMilestoneStatus(ctx, m.ID, model.MilestoneStatusCompleted, &now, note); err != nil {
			return "", fmt.Errorf("complete milestone %d: %w", m.ID, err)
		}
		m.Status = model.MilestoneStatusCompleted
		changed = true
	}
	if !changed {
		return "", nil
	}

	for i := range milestones {
		m := &milestones[i]
		if m.Status == model.MilestoneStatusInProgress {
			return m.Title, nil
		}
		if m.Status == model.MilestoneStatusPending {
			if err := repo.UpdateMilestoneStatus(ctx, m.ID, model.MilestoneStatusInProgress, nil, m.Notes); err != nil {
				return "", fmt.Errorf("start milestone %d: %w", m.ID, err)
			}
			return m.Title, nil
		}
	}
	return "", nil
}

func containsType(types []model.OrderMilestoneType, t model.OrderMilestoneType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
