package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService 把失败的 Outbox 事件重新放回待发送队列
type ReplayService struct {
	repo   *Repository
	logger *zap.Logger
}

// NewReplayService 创建新的 ReplayService
func NewReplayService(repo *Repository, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		repo:   repo,
		logger: logger,
	}
}

// ReplayEvent 重放指定的事件
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status == StatusSent {
		return fmt.Errorf("event %d already sent", eventID)
	}

	if err := s.repo.ResetEvent(ctx, eventID); err != nil {
		return err
	}

	s.logger.Info("Outbox event reset for replay",
		zap.Int64("event_id", eventID),
		zap.String("routing_key", event.RoutingKey),
	)
	return nil
}

// ReplayFailedEvents 重放所有失败的事件，返回成功重置的数量
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	successCount := 0
	for _, event := range events {
		if err := s.repo.ResetEvent(ctx, event.ID); err != nil {
			s.logger.Error("Failed to reset outbox event",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		successCount++
	}

	s.logger.Info("Failed outbox events reset",
		zap.Int("total", len(events)),
		zap.Int("reset", successCount),
	)
	return successCount, nil
}
