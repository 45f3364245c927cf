package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"orderflow/contracts/mq"
	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/pkg/logger"
	pkgmq "orderflow/pkg/mq"
	"orderflow/pkg/util"

	"go.uber.org/zap"
)

const orderApprovedHandlerName = "order_approved"

// DLQPublisher 死信发布
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

// OrderApprovedHandler 订单进入 APPROVED 后生成里程碑并开始 PLANNING 阶段
type OrderApprovedHandler struct {
	svc        *orderflow.Service
	deduper    *util.Deduper
	retries    *util.RetryCounter
	dlq        DLQPublisher
	maxRetries int64
	logger     *zap.Logger
}

func NewOrderApprovedHandler(
	svc *orderflow.Service,
	deduper *util.Deduper,
	retries *util.RetryCounter,
	dlq DLQPublisher,
	maxRetries int64,
	logger *zap.Logger,
) *OrderApprovedHandler {
	return &OrderApprovedHandler{
		svc:        svc,
		deduper:    deduper,
		retries:    retries,
		dlq:        dlq,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Handle 返回 error 时消息会被重新投递；超过重试次数或不可重试的错误进入死信队列
func (h *OrderApprovedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mq.OrderStatusChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal OrderStatusChangedPayload", zap.Error(err))
		return h.deadLetter(ctx, raw, err)
	}
	if p.NewStatus != string(model.OrderStatusApproved) {
		return nil
	}

	log = log.With(zap.Int("order_id", p.OrderID))
	key := strconv.Itoa(p.OrderID)
	if !h.deduper.AcquireOnce(ctx, orderApprovedHandlerName, key) {
		return nil
	}

	log.Info("Handling order.status_changed (APPROVED)")
	err := h.process(ctx, p.OrderID)
	retryKey := util.FormatRetryKey(orderApprovedHandlerName, p.OrderID)
	if err == nil {
		if rErr := h.retries.Reset(ctx, retryKey); rErr != nil {
			log.Warn("Failed to reset retry counter", zap.Error(rErr))
		}
		return nil
	}

	h.deduper.Release(ctx, orderApprovedHandlerName, key)

	retryable, kind := util.IsRetryableError(err)
	count, cErr := h.retries.IncrementAndGet(ctx, retryKey)
	if cErr != nil {
		log.Warn("Failed to increment retry counter", zap.Error(cErr))
		count = 1
	}
	if util.ShouldRetry(count, h.maxRetries, retryable) {
		log.Warn("Approval processing failed, will retry",
			zap.String("error_type", kind),
			zap.Int64("attempt", count),
			zap.Error(err),
		)
		return err
	}

	log.Error("Approval processing failed permanently",
		zap.String("error_type", kind),
		zap.Int64("attempt", count),
		zap.Error(err),
	)
	if dErr := h.deadLetter(ctx, raw, err); dErr != nil {
		return dErr
	}
	if rErr := h.retries.Reset(ctx, retryKey); rErr != nil {
		log.Warn("Failed to reset retry counter", zap.Error(rErr))
	}
	return nil
}

func (h *OrderApprovedHandler) process(ctx context.Context, orderID int) error {
	if _, err := h.svc.CreateMilestones(ctx, orderID); err != nil {
		return classify(err)
	}
	if _, err := h.svc.EnsurePhase(ctx, orderID, model.PhasePlanning); err != nil {
		return classify(err)
	}
	return nil
}

// classify 业务错误不重试
func classify(err error) error {
	switch {
	case errors.Is(err, orderflow.ErrOrderNotFound):
		return &util.Permanent{Kind: "not_found", Err: err}
	case errors.Is(err, orderflow.ErrInvalidInput):
		return &util.Permanent{Kind: "invalid_input", Err: err}
	}
	return err
}

func (h *OrderApprovedHandler) deadLetter(ctx context.Context, raw []byte, cause error) error {
	if err := h.dlq.PublishToDLQ(ctx, pkgmq.RoutingOrderStatusChanged, raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
		return err
	}
	return nil
}
