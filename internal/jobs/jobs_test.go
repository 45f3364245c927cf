package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orderflow/contracts/mq"
	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/internal/repository/memory"
	pkgmq "orderflow/pkg/mq"
	"orderflow/pkg/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []mq.MilestoneOverduePayload
	keys     []string
	err      error
}

func (p *recordingPublisher) PublishWithContext(_ context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, routingKey)
	p.payloads = append(p.payloads, payload.(mq.MilestoneOverduePayload))
	return nil
}

func TestOverdueSweeper(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	now := created.AddDate(0, 0, 10)

	store := memory.NewStore()
	svc := orderflow.NewService(store, zap.NewNop(), orderflow.WithClock(func() time.Time { return created }))
	ctx := context.Background()
	o, err := svc.CreateOrder(ctx, orderflow.CreateOrderRequest{ClientID: 1, Title: "Bridge", ProjectType: model.ProjectTypeWebApp})
	require.NoError(t, err)
	_, err = svc.CreateMilestones(ctx, o.ID)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sweepSvc := orderflow.NewService(store, zap.NewNop(), orderflow.WithClock(func() time.Time { return now }))
	pub := &recordingPublisher{}
	sweeper := NewOverdueSweeper(sweepSvc, pub, util.NewDeduper(rdb, 24*time.Hour, zap.NewNop()), zap.NewNop())
	sweeper.now = func() time.Time { return now }

	n, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{pkgmq.RoutingMilestoneOverdue, pkgmq.RoutingMilestoneOverdue, pkgmq.RoutingMilestoneOverdue}, pub.keys)
	assert.Equal(t, 9, pub.payloads[0].DaysLate)
	assert.Equal(t, string(model.MilestoneRequirementsGathering), pub.payloads[0].Type)

	// 同一天再次扫描不会重复通知
	n, err = sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOverdueSweeperPublishFailure(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	svc := orderflow.NewService(store, zap.NewNop(), orderflow.WithClock(func() time.Time { return created }))
	ctx := context.Background()
	o, err := svc.CreateOrder(ctx, orderflow.CreateOrderRequest{ClientID: 1, Title: "Bridge", ProjectType: model.ProjectTypeWebApp})
	require.NoError(t, err)
	_, err = svc.CreateMilestones(ctx, o.ID)
	require.NoError(t, err)

	later := orderflow.NewService(store, zap.NewNop(), orderflow.WithClock(func() time.Time { return created.AddDate(0, 0, 2) }))
	sweeper := NewOverdueSweeper(later, &recordingPublisher{err: errors.New("channel closed")}, nil, zap.NewNop())

	n, err := sweeper.Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
}

func TestSchedulerAdd(t *testing.T) {
	s := NewScheduler(context.Background(), time.Second, zap.NewNop())

	assert.Error(t, s.Add("not a cron spec", "broken", func(context.Context) error { return nil }))

	var ran bool
	require.NoError(t, s.Add("@every 1h", "probe", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		ran = hasDeadline
		return errors.New("logged, not returned")
	}))

	entries := s.cron.Entries()
	require.Len(t, entries, 1)
	entries[0].WrappedJob.Run()
	assert.True(t, ran)
}

func TestSchedulerStopWaitsForCron(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewScheduler(context.Background(), time.Second, zap.NewNop())
	require.NoError(t, s.Add("@every 1h", "idle", func(context.Context) error { return nil }))
	s.Start()
	s.Stop()
}
