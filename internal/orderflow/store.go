package orderflow

import (
	"context"
	"time"

	"orderflow/internal/model"
)

// OrderFilter ListOrders 的过滤条件，零值表示不过滤
type OrderFilter struct {
	Status   model.OrderStatus
	ClientID int
	Limit    int
}

// Repository 订单流程的持久化操作。
// 未找到订单时返回 ErrOrderNotFound，未找到质检记录时返回 ErrQualityCheckNotFound。
type Repository interface {
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id int) (*model.Order, error)
	// LockOrder 读取订单并加行锁，只在事务内有意义
	LockOrder(ctx context.Context, id int) (*model.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int, status model.OrderStatus, progress int, at time.Time) error
	UpdateCurrentMilestone(ctx context.Context, id int, label string, at time.Time) error

	InsertMilestones(ctx context.Context, milestones []*model.Milestone) error
	// ListMilestones 按 sequence 升序
	ListMilestones(ctx context.Context, orderID int) ([]model.Milestone, error)
	UpdateMilestoneStatus(ctx context.Context, id int, status model.MilestoneStatus, actualDate *time.Time, notes string) error
	ListOverdueMilestones(ctx context.Context, now time.Time, limit int) ([]model.OverdueMilestone, error)

	InsertQualityCheck(ctx context.Context, qc *model.QualityCheck) error
	GetQualityCheck(ctx context.Context, id int) (*model.QualityCheck, error)
	UpdateQualityCheckResult(ctx context.Context, qc *model.QualityCheck) error
	ListQualityChecks(ctx context.Context, orderID int) ([]model.QualityCheck, error)

	// GetOpenTimeTracking 没有未结束记录时返回 nil, nil
	GetOpenTimeTracking(ctx context.Context, orderID int) (*model.TimeTracking, error)
	InsertTimeTracking(ctx context.Context, t *model.TimeTracking) error
	CloseTimeTracking(ctx context.Context, id int, endedAt time.Time, minutes int) error
	ListTimeTracking(ctx context.Context, orderID int) ([]model.TimeTracking, error)

	InsertStatusUpdate(ctx context.Context, u *model.StatusUpdate) error
	// ListStatusUpdates 最新的在前
	ListStatusUpdates(ctx context.Context, orderID int, limit int) ([]model.StatusUpdate, error)

	// AppendEvent 写入 outbox，随事务一起提交
	AppendEvent(ctx context.Context, aggregateID int, routingKey string, payload any) error
}

// Store 在 Repository 之上提供事务
type Store interface {
	Repository
	// WithinTx fn 返回错误时回滚，所有写入要么全部生效要么全部丢弃
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// FlowCache 订单流程状态缓存
type FlowCache interface {
	Get(ctx context.Context, orderID int) (*FlowStatus, bool)
	Set(ctx context.Context, orderID int, status *FlowStatus)
	Invalidate(ctx context.Context, orderID int)
}
