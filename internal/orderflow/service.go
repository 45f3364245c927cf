package orderflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"orderflow/internal/model"
	"orderflow/pkg/logger"
	"orderflow/pkg/otel"

	"go.uber.org/zap"
)

// Service 订单流程服务：里程碑、质检、状态流转、阶段计时、完成判定
type Service struct {
	store     Store
	evaluator Evaluator
	cache     FlowCache
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithEvaluator 替换自动质检的评估器
func WithEvaluator(e Evaluator) Option {
	return func(s *Service) { s.evaluator = e }
}

// WithCache 开启流程状态缓存
func WithCache(c FlowCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithClock 测试用
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		evaluator: CannedEvaluator{},
		cache:     noopCache{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrderRequest 新建订单参数
type CreateOrderRequest struct {
	ClientID    int               `json:"client_id"`
	Title       string            `json:"title"`
	ProjectType model.ProjectType `json:"project_type"`
}

// CreateOrder 新订单总是 PENDING、进度 0
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	ctx, span := otel.StartSpan(ctx, "orderflow.CreateOrder")
	var err error
	defer func() { otel.EndSpan(span, err) }()

	if !req.ProjectType.Valid() {
		err = fmt.Errorf("%w: %q", ErrInvalidProjectType, req.ProjectType)
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		err = invalidInput("title is required")
		return nil, err
	}
	if req.ClientID <= 0 {
		err = invalidInput("client_id must be positive")
		return nil, err
	}

	now := s.now()
	order := &model.Order{
		ClientID:         req.ClientID,
		Title:            strings.TrimSpace(req.Title),
		ProjectType:      req.ProjectType,
		Status:           model.OrderStatusPending,
		Progress:         ProgressFor(model.OrderStatusPending),
		CurrentMilestone: phaseTitles[model.PhasePlanning],
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err = s.store.CreateOrder(ctx, order); err != nil {
		err = fmt.Errorf("create order: %w", err)
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Order created",
		zap.Int("order_id", order.ID),
		zap.Int("client_id", order.ClientID),
		zap.String("project_type", string(order.ProjectType)),
	)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id int) (*model.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidInput("unknown status %q", filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.store.ListOrders(ctx, filter)
}

// OverdueMilestones 计划日期已过但未完成的里程碑
func (s *Service) OverdueMilestones(ctx context.Context, limit int) ([]model.OverdueMilestone, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListOverdueMilestones(ctx, s.now(), limit)
}

type noopCache struct{}

func (noopCache) Get(context.Context, int) (*FlowStatus, bool) { return nil, false }
func (noopCache) Set(context.Context, int, *FlowStatus)        {}
func (noopCache) Invalidate(context.Context, int)              {}
