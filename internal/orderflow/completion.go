package orderflow

import (
	"context"
	"errors"
	"fmt"

	"orderflow/internal/model"
)

// CheckOrderCompletionCriteria 所有里程碑已完成、所有质检通过或豁免、且订单已完成或已交付时返回 true。
// 订单不存在时返回 false 而不是错误。
func (s *Service) CheckOrderCompletionCriteria(ctx context.Context, orderID int) (bool, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	milestones, err := s.store.ListMilestones(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("list milestones: %w", err)
	}
	checks, err := s.store.ListQualityChecks(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("list quality checks: %w", err)
	}
	return completionReady(order, milestones, checks), nil
}

func completionReady(order *model.Order, milestones []model.Milestone, checks []model.QualityCheck) bool {
	if order.Status != model.OrderStatusCompleted && order.Status != model.OrderStatusDelivered {
		return false
	}
	for _, m := range milestones {
		if m.Status != model.MilestoneStatusCompleted {
			return false
		}
	}
	for _, c := range checks {
		if c.Status != model.QualityStatusPassed && c.Status != model.QualityStatusWaived {
			return false
		}
	}
	return true
}
