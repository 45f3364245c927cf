package orderflow

import (
	"context"
	"fmt"

	"orderflow/internal/model"
	"orderflow/pkg/otel"

	"golang.org/x/sync/errgroup"
)

const recentUpdatesLimit = 20

// FlowStatus 订单流程总览。
// Progress 来自状态表；MilestoneProgress 是已完成里程碑比例，两者可能不一致。
// 结果会被缓存（默认 30 秒），命中缓存时未结束记录的 PhaseMinutes 停留在构建时刻。
type FlowStatus struct {
	Order               *model.Order             `json:"order"`
	CurrentPhase        model.OrderPhase         `json:"current_phase"`
	Progress            int                      `json:"progress"`
	MilestoneProgress   int                      `json:"milestone_progress"`
	CompletedMilestones int                      `json:"completed_milestones"`
	TotalMilestones     int                      `json:"total_milestones"`
	Milestones          []model.Milestone        `json:"milestones"`
	QualityChecks       []model.QualityCheck     `json:"quality_checks"`
	TimeTracking        []model.TimeTracking     `json:"time_tracking"`
	PhaseMinutes        map[model.OrderPhase]int `json:"phase_minutes"`
	RecentUpdates       []model.StatusUpdate     `json:"recent_updates"`
	CompletionReady     bool                     `json:"completion_ready"`
}

// GetFlowStatus 汇总订单流程状态，命中缓存时直接返回
func (s *Service) GetFlowStatus(ctx context.Context, orderID int) (*FlowStatus, error) {
	if cached, ok := s.cache.Get(ctx, orderID); ok {
		return cached, nil
	}

	ctx, span := otel.StartSpan(ctx, "orderflow.GetFlowStatus")
	var err error
	defer func() { otel.EndSpan(span, err) }()

	var status *FlowStatus
	status, err = s.buildFlowStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, orderID, status)
	return status, nil
}

func (s *Service) buildFlowStatus(ctx context.Context, orderID int) (*FlowStatus, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var (
		milestones []model.Milestone
		checks     []model.QualityCheck
		tracking   []model.TimeTracking
		updates    []model.StatusUpdate
	)
	// 各子列表互不依赖，并行读取
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if milestones, err = s.store.ListMilestones(gctx, orderID); err != nil {
			return fmt.Errorf("list milestones: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if checks, err = s.store.ListQualityChecks(gctx, orderID); err != nil {
			return fmt.Errorf("list quality checks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if tracking, err = s.store.ListTimeTracking(gctx, orderID); err != nil {
			return fmt.Errorf("list time tracking: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if updates, err = s.store.ListStatusUpdates(gctx, orderID, recentUpdatesLimit); err != nil {
			return fmt.Errorf("list status updates: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	phase, err := currentPhase(ctx, s.store, order)
	if err != nil {
		return nil, err
	}

	completed := 0
	for _, m := range milestones {
		if m.Status == model.MilestoneStatusCompleted {
			completed++
		}
	}
	milestoneProgress := 0
	if len(milestones) > 0 {
		milestoneProgress = completed * 100 / len(milestones)
	}

	now := s.now()
	phaseMinutes := make(map[model.OrderPhase]int)
	for _, t := range tracking {
		if t.DurationMinutes != nil {
			phaseMinutes[t.Phase] += *t.DurationMinutes
		} else {
			phaseMinutes[t.Phase] += elapsedMinutes(t.StartedAt, now)
		}
	}

	return &FlowStatus{
		Order:               order,
		CurrentPhase:        phase,
		Progress:            ProgressFor(order.Status),
		MilestoneProgress:   milestoneProgress,
		CompletedMilestones: completed,
		TotalMilestones:     len(milestones),
		Milestones:          nonNil(milestones),
		QualityChecks:       nonNil(checks),
		TimeTracking:        nonNil(tracking),
		PhaseMinutes:        phaseMinutes,
		RecentUpdates:       nonNil(updates),
		CompletionReady:     completionReady(order, milestones, checks),
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
