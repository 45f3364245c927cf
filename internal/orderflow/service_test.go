package orderflow_test

import (
	"context"
	"testing"
	"time"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store *memory.Store
	clock *fakeClock
	svc   *orderflow.Service
}

func newFixture(t *testing.T, opts ...orderflow.Option) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), clock: &fakeClock{t: day0}}
	opts = append([]orderflow.Option{orderflow.WithClock(f.clock.Now)}, opts...)
	f.svc = orderflow.NewService(f.store, zap.NewNop(), opts...)
	return f
}

func (f *fixture) newOrder(t *testing.T, pt model.ProjectType) *model.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), orderflow.CreateOrderRequest{
		ClientID:    7,
		Title:       "Staking dashboard",
		ProjectType: pt,
	})
	require.NoError(t, err)
	return o
}

// moveTo 按合法路径把订单推进到目标状态
func (f *fixture) moveTo(t *testing.T, orderID int, path ...model.OrderStatus) *model.Order {
	t.Helper()
	var o *model.Order
	for _, st := range path {
		var err error
		o, err = f.svc.UpdateStatus(context.Background(), orderID, orderflow.StatusChange{Status: st})
		require.NoError(t, err, "transition to %s", st)
	}
	return o
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder(t, model.ProjectTypeWebApp)

	assert.NotZero(t, o.ID)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, 0, o.Progress)
	assert.Equal(t, day0, o.CreatedAt)

	got, err := f.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Title, got.Title)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  orderflow.CreateOrderRequest
		want error
	}{
		{"unknown project type", orderflow.CreateOrderRequest{ClientID: 1, Title: "x", ProjectType: "GAME"}, orderflow.ErrInvalidProjectType},
		{"blank title", orderflow.CreateOrderRequest{ClientID: 1, Title: "  ", ProjectType: model.ProjectTypeCustom}, orderflow.ErrInvalidInput},
		{"missing client", orderflow.CreateOrderRequest{Title: "x", ProjectType: model.ProjectTypeCustom}, orderflow.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.newOrder(t, model.ProjectTypeWebApp)
	f.newOrder(t, model.ProjectTypeMobileApp)
	f.moveTo(t, a.ID, model.OrderStatusApproved)

	all, err := f.svc.ListOrders(ctx, orderflow.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved, err := f.svc.ListOrders(ctx, orderflow.OrderFilter{Status: model.OrderStatusApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, a.ID, approved[0].ID)

	_, err = f.svc.ListOrders(ctx, orderflow.OrderFilter{Status: "SHIPPED"})
	assert.ErrorIs(t, err, orderflow.ErrInvalidInput)
}

func TestOverdueMilestones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t, model.ProjectTypeWebApp)
	_, err := f.svc.CreateMilestones(ctx, o.ID)
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	overdue, err := f.svc.OverdueMilestones(ctx, 0)
	require.NoError(t, err)

	require.Len(t, overdue, 3)
	assert.Equal(t, model.MilestoneRequirementsGathering, overdue[0].Type)
	assert.Equal(t, model.MilestoneDesignApproval, overdue[1].Type)
	assert.Equal(t, model.MilestoneDevelopment, overdue[2].Type)
}
