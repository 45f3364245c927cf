package orderflow_test

import (
	"context"
	"testing"
	"time"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allProjectTypes = []model.ProjectType{
	model.ProjectTypeWebApp,
	model.ProjectTypeMobileApp,
	model.ProjectTypeSmartContract,
	model.ProjectTypeDeFiProtocol,
	model.ProjectTypeNFTMarketplace,
	model.ProjectTypeCustom,
}

func TestMilestoneTemplatesDeterministic(t *testing.T) {
	wantTypes := []model.OrderMilestoneType{
		model.MilestoneRequirementsGathering,
		model.MilestoneDesignApproval,
		model.MilestoneDevelopment,
		model.MilestoneTesting,
		model.MilestoneQualityAssurance,
		model.MilestoneFinalDelivery,
	}
	for _, pt := range allProjectTypes {
		t.Run(string(pt), func(t *testing.T) {
			first := orderflow.MilestoneTemplates(pt)
			second := orderflow.MilestoneTemplates(pt)
			assert.Equal(t, first, second)

			var types []model.OrderMilestoneType
			for _, m := range first {
				types = append(types, m.Type)
				assert.Positive(t, m.EstimatedHours)
			}
			assert.Equal(t, wantTypes, types)
		})
	}
}

func TestMilestoneTemplatesDifferPerProjectType(t *testing.T) {
	web := orderflow.MilestoneTemplates(model.ProjectTypeWebApp)
	mobile := orderflow.MilestoneTemplates(model.ProjectTypeMobileApp)

	assert.Equal(t, web[0], mobile[0])
	assert.NotEqual(t, web[2].EstimatedHours, mobile[2].EstimatedHours)
	assert.NotEqual(t, web[3].EstimatedHours, mobile[3].EstimatedHours)
}

func TestPlannedDate(t *testing.T) {
	tests := []struct {
		index int
		days  int
	}{
		{0, 1}, {1, 3}, {2, 7}, {3, 14}, {4, 21}, {5, 28}, {6, 30}, {10, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, day0.AddDate(0, 0, tt.days), orderflow.PlannedDate(day0, tt.index), "index %d", tt.index)
	}
}

func TestCreateMilestonesWebApp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t, model.ProjectTypeWebApp)

	milestones, err := f.svc.CreateMilestones(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, milestones, 6)

	wantDays := []int{1, 3, 7, 14, 21, 28}
	for i, m := range milestones {
		assert.Equal(t, day0.AddDate(0, 0, wantDays[i]), m.PlannedDate, "milestone %d", i)
		assert.Equal(t, i+1, m.Sequence)
		if i == 0 {
			assert.Equal(t, model.MilestoneStatusInProgress, m.Status)
		} else {
			assert.Equal(t, model.MilestoneStatusPending, m.Status)
			assert.True(t, m.PlannedDate.After(milestones[i-1].PlannedDate))
		}
	}

	order, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, milestones[0].Title, order.CurrentMilestone)
}

func TestCreateMilestonesIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t, model.ProjectTypeSmartContract)

	first, err := f.svc.CreateMilestones(ctx, o.ID)
	require.NoError(t, err)
	second, err := f.svc.CreateMilestones(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCreateMilestonesUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateMilestones(context.Background(), 404)
	assert.ErrorIs(t, err, orderflow.ErrOrderNotFound)
}

func TestCreateMilestonesCatchesUpWithReachedStatus(t *testing.T) {
	tests := []struct {
		name          string
		path          []model.OrderStatus
		wantCompleted []model.OrderMilestoneType
		wantCurrent   model.OrderMilestoneType
	}{
		{
			name:          "approved",
			path:          []model.OrderStatus{model.OrderStatusApproved},
			wantCompleted: []model.OrderMilestoneType{model.MilestoneRequirementsGathering},
			wantCurrent:   model.MilestoneDesignApproval,
		},
		{
			name: "in progress",
			path: []model.OrderStatus{model.OrderStatusApproved, model.OrderStatusInProgress},
			wantCompleted: []model.OrderMilestoneType{
				model.MilestoneRequirementsGathering,
				model.MilestoneDesignApproval,
			},
			wantCurrent: model.MilestoneDevelopment,
		},
		{
			// 取消后仍按历史补齐
			name: "cancelled during development",
			path: []model.OrderStatus{model.OrderStatusApproved, model.OrderStatusInProgress, model.OrderStatusCancelled},
			wantCompleted: []model.OrderMilestoneType{
				model.MilestoneRequirementsGathering,
				model.MilestoneDesignApproval,
			},
			wantCurrent: model.MilestoneDevelopment,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			o := f.newOrder(t, model.ProjectTypeWebApp)
			f.moveTo(t, o.ID, tt.path...)

			milestones, err := f.svc.CreateMilestones(ctx, o.ID)
			require.NoError(t, err)
			require.Len(t, milestones, 6)

			var (
				completed []model.OrderMilestoneType
				current   model.Milestone
			)
			for _, m := range milestones {
				switch m.Status {
				case model.MilestoneStatusCompleted:
					completed = append(completed, m.Type)
				case model.MilestoneStatusInProgress:
					assert.Empty(t, current.Title, "only one milestone in progress")
					current = m
				}
			}
			assert.Equal(t, tt.wantCompleted, completed)
			assert.Equal(t, tt.wantCurrent, current.Type)

			order, err := f.svc.GetOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, current.Title, order.CurrentMilestone)
		})
	}
}

func TestMilestonesGeneratedAfterApprovalReachCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t, model.ProjectTypeWebApp)
	f.moveTo(t, o.ID, model.OrderStatusApproved)

	_, err := f.svc.CreateMilestones(ctx, o.ID)
	require.NoError(t, err)
	f.moveTo(t, o.ID, model.OrderStatusInProgress, model.OrderStatusReview, model.OrderStatusCompleted)

	// 计划日期全部已过，只剩尚未交付的 FINAL_DELIVERY 逾期
	f.clock.Advance(60 * 24 * time.Hour)
	overdue, err := f.svc.OverdueMilestones(ctx, 0)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, model.MilestoneFinalDelivery, overdue[0].Type)

	f.moveTo(t, o.ID, model.OrderStatusDelivered)
	ok, err := f.svc.CheckOrderCompletionCriteria(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	order, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final Delivery", order.CurrentMilestone)
}
