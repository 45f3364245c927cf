package jobs

import (
	"context"
	"fmt"
	"time"

	"orderflow/contracts/mq"
	"orderflow/internal/orderflow"
	pkgmq "orderflow/pkg/mq"
	"orderflow/pkg/outbox"
	"orderflow/pkg/util"

	"go.uber.org/zap"
)

const overdueSweepBatch = 500

// OverdueSweeper 扫描逾期里程碑并发布 milestone.overdue，同一里程碑每天最多通知一次
type OverdueSweeper struct {
	svc       *orderflow.Service
	publisher outbox.EventPublisher
	deduper   *util.Deduper
	now       func() time.Time
	logger    *zap.Logger
}

func NewOverdueSweeper(svc *orderflow.Service, publisher outbox.EventPublisher, deduper *util.Deduper, logger *zap.Logger) *OverdueSweeper {
	return &OverdueSweeper{
		svc:       svc,
		publisher: publisher,
		deduper:   deduper,
		now:       time.Now,
		logger:    logger,
	}
}

// Run 返回本次发布的事件数
func (s *OverdueSweeper) Run(ctx context.Context) (int, error) {
	overdue, err := s.svc.OverdueMilestones(ctx, overdueSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list overdue milestones: %w", err)
	}

	now := s.now()
	day := now.Format("2006-01-02")
	published, failed := 0, 0
	for _, m := range overdue {
		key := fmt.Sprintf("%d:%s", m.MilestoneID, day)
		if s.deduper != nil && !s.deduper.AcquireOnce(ctx, "milestone_overdue", key) {
			continue
		}

		payload := mq.MilestoneOverduePayload{
			MilestoneID: m.MilestoneID,
			OrderID:     m.OrderID,
			Type:        string(m.Type),
			Title:       m.Title,
			PlannedDate: m.PlannedDate,
			DaysLate:    int(now.Sub(m.PlannedDate).Hours() / 24),
		}
		if err := s.publisher.PublishWithContext(ctx, pkgmq.RoutingMilestoneOverdue, payload); err != nil {
			failed++
			if s.deduper != nil {
				s.deduper.Release(ctx, "milestone_overdue", key)
			}
			s.logger.Warn("Failed to publish milestone.overdue",
				zap.Int("milestone_id", m.MilestoneID),
				zap.Error(err),
			)
			continue
		}
		published++
	}

	s.logger.Info("Overdue milestone sweep finished",
		zap.Int("overdue", len(overdue)),
		zap.Int("published", published),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return published, fmt.Errorf("%d milestone.overdue events not published", failed)
	}
	return published, nil
}
