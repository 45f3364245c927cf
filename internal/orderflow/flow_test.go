package orderflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu          sync.Mutex
	entries     map[int]*orderflow.FlowStatus
	invalidated []int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[int]*orderflow.FlowStatus)}
}

func (c *mapCache) Get(_ context.Context, orderID int) (*orderflow.FlowStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[orderID]
	return s, ok
}

func (c *mapCache) Set(_ context.Context, orderID int, s *orderflow.FlowStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[orderID] = s
}

func (c *mapCache) Invalidate(_ context.Context, orderID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, orderID)
	c.invalidated = append(c.invalidated, orderID)
}

func TestGetFlowStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t, model.ProjectTypeSmartContract)
	_, err := f.svc.CreateMilestones(ctx, o.ID)
	require.NoError(t, err)
	f.moveTo(t, o.ID, model.OrderStatusApproved)

	_, err = f.svc.StartPhase(ctx, o.ID, model.PhasePlanning)
	require.NoError(t, err)
	f.clock.Advance(45 * time.Minute)
	_, err = f.svc.StartPhase(ctx, o.ID, model.PhaseDesign)
	require.NoError(t, err)
	f.clock.Advance(15 * time.Minute)
	_, err = f.svc.PerformQualityCheck(ctx, o.ID, model.QualityCheckCodeReview, true)
	require.NoError(t, err)

	flow, err := f.svc.GetFlowStatus(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, o.ID, flow.Order.ID)
	assert.Equal(t, model.PhaseDesign, flow.CurrentPhase)
	assert.Equal(t, 10, flow.Progress)
	assert.Equal(t, 6, flow.TotalMilestones)
	assert.Equal(t, 1, flow.CompletedMilestones)
	assert.Equal(t, 16, flow.MilestoneProgress)
	assert.Len(t, flow.QualityChecks, 1)
	assert.Len(t, flow.TimeTracking, 2)
	assert.Equal(t, 45, flow.PhaseMinutes[model.PhasePlanning])
	assert.Equal(t, 15, flow.PhaseMinutes[model.PhaseDesign])
	assert.Len(t, flow.RecentUpdates, 1)
	assert.False(t, flow.CompletionReady)
}

func TestGetFlowStatusEmptyOrder(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder(t, model.ProjectTypeCustom)

	flow, err := f.svc.GetFlowStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.NotNil(t, flow.Milestones)
	assert.NotNil(t, flow.QualityChecks)
	assert.Equal(t, model.PhasePlanning, flow.CurrentPhase)
	assert.Equal(t, 0, flow.MilestoneProgress)

	_, err = f.svc.GetFlowStatus(context.Background(), 999)
	assert.ErrorIs(t, err, orderflow.ErrOrderNotFound)
}

func TestFlowStatusCacheInvalidation(t *testing.T) {
	cache := newMapCache()
	f := newFixture(t, orderflow.WithCache(cache))
	ctx := context.Background()
	o := f.newOrder(t, model.ProjectTypeWebApp)

	first, err := f.svc.GetFlowStatus(ctx, o.ID)
	require.NoError(t, err)
	second, err := f.svc.GetFlowStatus(ctx, o.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)

	f.moveTo(t, o.ID, model.OrderStatusApproved)
	assert.Contains(t, cache.invalidated, o.ID)

	third, err := f.svc.GetFlowStatus(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusApproved, third.Order.Status)
}
