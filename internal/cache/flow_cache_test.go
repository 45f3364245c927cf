package cache

import (
	"context"
	"testing"
	"time"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *FlowCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewFlowCache(rdb, 0, zap.NewNop())
}

func TestFlowCacheRoundTrip(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)

	status := &orderflow.FlowStatus{
		Order:        &model.Order{ID: 1, Status: model.OrderStatusReview, Progress: 80},
		CurrentPhase: model.PhaseReview,
		Progress:     80,
		PhaseMinutes: map[model.OrderPhase]int{model.PhaseDevelopment: 120},
	}
	c.Set(ctx, 1, status)

	got, ok := c.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, model.OrderStatusReview, got.Order.Status)
	assert.Equal(t, 120, got.PhaseMinutes[model.PhaseDevelopment])
	assert.Equal(t, DefaultFlowTTL, mr.TTL(flowKey(1)))

	mr.FastForward(31 * time.Second)
	_, ok = c.Get(ctx, 1)
	assert.False(t, ok)
}

func TestFlowCacheInvalidate(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, 5, &orderflow.FlowStatus{Progress: 10})
	c.Invalidate(ctx, 5)

	_, ok := c.Get(ctx, 5)
	assert.False(t, ok)
}

func TestFlowCacheDropsGarbage(t *testing.T) {
	mr, c := newTestCache(t)
	require.NoError(t, mr.Set(flowKey(9), "not json"))

	_, ok := c.Get(context.Background(), 9)
	assert.False(t, ok)
	assert.False(t, mr.Exists(flowKey(9)))
}

func TestFlowCacheRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	c := NewFlowCache(rdb, time.Second, zap.NewNop())
	mr.Close()

	ctx := context.Background()
	c.Set(ctx, 1, &orderflow.FlowStatus{})
	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)
	c.Invalidate(ctx, 1)
}
