package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"orderflow/contracts/mq"
	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/internal/repository/memory"
	"orderflow/pkg/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDLQ struct {
	messages []string
	err      error
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, routingKey string, _ []byte, originalError string) error {
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, routingKey+": "+originalError)
	return nil
}

type handlerFixture struct {
	store   *memory.Store
	svc     *orderflow.Service
	dlq     *recordingDLQ
	handler *OrderApprovedHandler
	mr      *miniredis.Miniredis
}

func newHandlerFixture(t *testing.T, store orderflow.Store, mem *memory.Store) *handlerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zap.NewNop()
	svc := orderflow.NewService(store, logger)
	dlq := &recordingDLQ{}
	h := NewOrderApprovedHandler(
		svc,
		util.NewDeduper(rdb, time.Hour, logger),
		util.NewRetryCounter(rdb, time.Hour),
		dlq,
		2,
		logger,
	)
	return &handlerFixture{store: mem, svc: svc, dlq: dlq, handler: h, mr: mr}
}

func approvedPayload(t *testing.T, orderID int, status model.OrderStatus) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mq.OrderStatusChangedPayload{
		OrderID:   orderID,
		OldStatus: string(model.OrderStatusPending),
		NewStatus: string(status),
		ChangedAt: time.Now(),
	})
	require.NoError(t, err)
	return raw
}

func TestOrderApprovedHandler(t *testing.T) {
	mem := memory.NewStore()
	f := newHandlerFixture(t, mem, mem)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, orderflow.CreateOrderRequest{ClientID: 1, Title: "Wallet", ProjectType: model.ProjectTypeMobileApp})
	require.NoError(t, err)

	require.NoError(t, f.handler.Handle(ctx, approvedPayload(t, o.ID, model.OrderStatusApproved)))

	milestones, err := mem.ListMilestones(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, milestones, 6)

	open, err := mem.GetOpenTimeTracking(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, model.PhasePlanning, open.Phase)

	// 重复投递被去重
	require.NoError(t, f.handler.Handle(ctx, approvedPayload(t, o.ID, model.OrderStatusApproved)))
	records, err := mem.ListTimeTracking(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestOrderApprovedHandlerThroughDelivery(t *testing.T) {
	mem := memory.NewStore()
	f := newHandlerFixture(t, mem, mem)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, orderflow.CreateOrderRequest{ClientID: 1, Title: "Dashboard", ProjectType: model.ProjectTypeWebApp})
	require.NoError(t, err)

	// 计划由 APPROVED 事件生成，此时状态流转已经提交
	_, err = f.svc.UpdateStatus(ctx, o.ID, orderflow.StatusChange{Status: model.OrderStatusApproved})
	require.NoError(t, err)
	require.NoError(t, f.handler.Handle(ctx, approvedPayload(t, o.ID, model.OrderStatusApproved)))

	milestones, err := mem.ListMilestones(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, milestones, 6)
	assert.Equal(t, model.MilestoneStatusCompleted, milestones[0].Status)
	assert.Equal(t, model.MilestoneStatusInProgress, milestones[1].Status)

	for _, st := range []model.OrderStatus{
		model.OrderStatusInProgress,
		model.OrderStatusReview,
		model.OrderStatusCompleted,
	} {
		_, err = f.svc.UpdateStatus(ctx, o.ID, orderflow.StatusChange{Status: st})
		require.NoError(t, err, "transition to %s", st)
	}

	overdue, err := mem.ListOverdueMilestones(ctx, o.CreatedAt.AddDate(0, 0, 60), 0)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, model.MilestoneFinalDelivery, overdue[0].Type)

	delivered, err := f.svc.UpdateStatus(ctx, o.ID, orderflow.StatusChange{Status: model.OrderStatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, "Final Delivery", delivered.CurrentMilestone)

	milestones, err = mem.ListMilestones(ctx, o.ID)
	require.NoError(t, err)
	for _, m := range milestones {
		assert.Equal(t, model.MilestoneStatusCompleted, m.Status, m.Title)
	}

	ok, err := f.svc.CheckOrderCompletionCriteria(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrderApprovedHandlerIgnoresOtherStatuses(t *testing.T) {
	mem := memory.NewStore()
	f := newHandlerFixture(t, mem, mem)

	require.NoError(t, f.handler.Handle(context.Background(), approvedPayload(t, 1, model.OrderStatusReview)))
	assert.Empty(t, f.dlq.messages)
}

func TestOrderApprovedHandlerUnknownOrderGoesToDLQ(t *testing.T) {
	mem := memory.NewStore()
	f := newHandlerFixture(t, mem, mem)

	err := f.handler.Handle(context.Background(), approvedPayload(t, 404, model.OrderStatusApproved))
	require.NoError(t, err)
	require.Len(t, f.dlq.messages, 1)
	assert.Contains(t, f.dlq.messages[0], "not_found")
}

func TestOrderApprovedHandlerBadPayloadGoesToDLQ(t *testing.T) {
	mem := memory.NewStore()
	f := newHandlerFixture(t, mem, mem)

	err := f.handler.Handle(context.Background(), json.RawMessage(`{"order_id": "x"}`))
	require.NoError(t, err)
	assert.Len(t, f.dlq.messages, 1)
}

// flakyStore 事务总是以连接错误失败
type flakyStore struct {
	*memory.Store
}

func (flakyStore) WithinTx(context.Context, func(ctx context.Context, repo orderflow.Repository) error) error {
	return errors.New("connection refused")
}

func TestOrderApprovedHandlerRetriesThenDeadLetters(t *testing.T) {
	mem := memory.NewStore()
	f := newHandlerFixture(t, flakyStore{mem}, mem)
	ctx := context.Background()
	raw := approvedPayload(t, 1, model.OrderStatusApproved)

	// maxRetries=2：前两次返回错误让消息重投，第三次进入死信
	assert.Error(t, f.handler.Handle(ctx, raw))
	assert.Error(t, f.handler.Handle(ctx, raw))
	assert.Empty(t, f.dlq.messages)

	assert.NoError(t, f.handler.Handle(ctx, raw))
	assert.Len(t, f.dlq.messages, 1)
	assert.False(t, f.mr.Exists(util.FormatRetryKey(orderApprovedHandlerName, 1)))
}

func TestOrderApprovedHandlerDLQFailureRequeues(t *testing.T) {
	mem := memory.NewStore()
	f := newHandlerFixture(t, mem, mem)
	f.dlq.err = errors.New("broker down")

	err := f.handler.Handle(context.Background(), approvedPayload(t, 404, model.OrderStatusApproved))
	assert.Error(t, err)
}
