package orderflow_test

import (
	"context"
	"testing"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pathToCompleted = []model.OrderStatus{
	model.OrderStatusApproved,
	model.OrderStatusInProgress,
	model.OrderStatusReview,
	model.OrderStatusCompleted,
}

func TestCheckOrderCompletionCriteria(t *testing.T) {
	ctx := context.Background()

	t.Run("all conditions hold", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t, model.ProjectTypeWebApp)
		_, err := f.svc.CreateMilestones(ctx, o.ID)
		require.NoError(t, err)
		_, err = f.svc.PerformQualityCheck(ctx, o.ID, model.QualityCheckCodeReview, true)
		require.NoError(t, err)
		f.moveTo(t, o.ID, append(pathToCompleted, model.OrderStatusDelivered)...)

		ok, err := f.svc.CheckOrderCompletionCriteria(ctx, o.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("milestone still open", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t, model.ProjectTypeWebApp)
		_, err := f.svc.CreateMilestones(ctx, o.ID)
		require.NoError(t, err)
		f.moveTo(t, o.ID, pathToCompleted...)

		// FINAL_DELIVERY 只在 DELIVERED 时完成
		ok, err := f.svc.CheckOrderCompletionCriteria(ctx, o.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("quality check failed", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t, model.ProjectTypeWebApp)
		qc, err := f.svc.PerformQualityCheck(ctx, o.ID, model.QualityCheckClientAcceptance, false)
		require.NoError(t, err)
		_, err = f.svc.CompleteQualityCheck(ctx, qc.ID, orderflow.EvaluationResult{Status: model.QualityStatusFailed})
		require.NoError(t, err)
		f.moveTo(t, o.ID, pathToCompleted...)

		ok, err := f.svc.CheckOrderCompletionCriteria(ctx, o.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("quality check waived", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t, model.ProjectTypeWebApp)
		qc, err := f.svc.PerformQualityCheck(ctx, o.ID, model.QualityCheckUIUXReview, false)
		require.NoError(t, err)
		_, err = f.svc.CompleteQualityCheck(ctx, qc.ID, orderflow.EvaluationResult{Status: model.QualityStatusWaived})
		require.NoError(t, err)
		f.moveTo(t, o.ID, pathToCompleted...)

		ok, err := f.svc.CheckOrderCompletionCriteria(ctx, o.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("status not completed", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t, model.ProjectTypeWebApp)
		f.moveTo(t, o.ID, model.OrderStatusApproved, model.OrderStatusInProgress, model.OrderStatusReview)

		ok, err := f.svc.CheckOrderCompletionCriteria(ctx, o.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		ok, err := f.svc.CheckOrderCompletionCriteria(ctx, 12345)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
