package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"orderflow/pkg/trace"
)

// EventPublisher 由 mq.Publisher 实现
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Dispatcher 负责从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	repo       *Repository
	publisher  EventPublisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

// NewDispatcher 创建新的 Dispatcher
func NewDispatcher(
	repo *Repository,
	publisher EventPublisher,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,               // 默认最大重试5次
		interval:   1 * time.Second, // 默认每秒扫描一次
		batchSize:  100,             // 默认每次处理100个事件
	}
}

// WithMaxRetries 设置最大重试次数
func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

// WithInterval 设置扫描间隔
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

// WithBatchSize 设置批次大小
func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start 启动 Dispatcher，阻塞直到 ctx 取消
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.processPendingEvents(ctx); err != nil {
				d.logger.Error("Failed to process outbox batch", zap.Error(err))
			}
		}
	}
}

// processPendingEvents 在一个事务里领取并发送一批事件
func (d *Dispatcher) processPendingEvents(ctx context.Context) error {
	tx, err := d.repo.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	events, err := d.repo.GetPendingEvents(ctx, tx, d.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	d.logger.Debug("Processing pending events", zap.Int("count", len(events)))

	for _, event := range events {
		d.dispatchOne(ctx, tx, event)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit outbox batch: %w", err)
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, tx pgx.Tx, event *Event) {
	if err := publishEvent(ctx, d.publisher, event); err != nil {
		d.logger.Error("Failed to publish event",
			zap.Int64("event_id", event.ID),
			zap.String("routing_key", event.RoutingKey),
			zap.Error(err),
		)
		if err := d.repo.MarkAsFailed(ctx, tx, event.ID, d.maxRetries); err != nil {
			d.logger.Error("Failed to mark event as failed",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
		}
		return
	}

	if err := d.repo.MarkAsSent(ctx, tx, event.ID); err != nil {
		d.logger.Error("Failed to mark event as sent",
			zap.Int64("event_id", event.ID),
			zap.Error(err),
		)
		return
	}

	d.logger.Debug("Event published successfully",
		zap.Int64("event_id", event.ID),
		zap.String("routing_key", event.RoutingKey),
	)
}

// publishEvent 原样发布 payload，trace_id 从 payload 中恢复
func publishEvent(ctx context.Context, publisher EventPublisher, event *Event) error {
	ctx = withTraceFromPayload(ctx, event.Payload)
	if err := publisher.PublishWithContext(ctx, event.RoutingKey, event.Payload); err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}
	return nil
}

func withTraceFromPayload(ctx context.Context, payload json.RawMessage) context.Context {
	var envelope struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.TraceID == "" {
		return ctx
	}
	return trace.WithContext(ctx, envelope.TraceID)
}
