package orderflow

import (
	"context"
	"fmt"
	"time"

	"orderflow/internal/model"
	"orderflow/pkg/logger"
	"orderflow/pkg/metrics"
	"orderflow/pkg/otel"

	"go.uber.org/zap"
)

// plannedOffsetDays 按里程碑下标计算计划日期
var plannedOffsetDays = []int{1, 3, 7, 14, 21, 28}

const defaultOffsetDays = 30

// MilestoneTemplate 里程碑模板
type MilestoneTemplate struct {
	Type           model.OrderMilestoneType
	Title          string
	Description    string
	EstimatedHours int
}

var (
	requirementsTemplate = MilestoneTemplate{
		Type:           model.MilestoneRequirementsGathering,
		Title:          "Requirements Gathering",
		Description:    "Collect and confirm functional requirements with the client",
		EstimatedHours: 8,
	}
	designTemplate = MilestoneTemplate{
		Type:           model.MilestoneDesignApproval,
		Title:          "Design Approval",
		Description:    "Present architecture and UI design for client sign-off",
		EstimatedHours: 16,
	}
	qaTemplate = MilestoneTemplate{
		Type:           model.MilestoneQualityAssurance,
		Title:          "Quality Assurance",
		Description:    "Code review, security audit and acceptance testing",
		EstimatedHours: 12,
	}
	deliveryTemplate = MilestoneTemplate{
		Type:           model.MilestoneFinalDelivery,
		Title:          "Final Delivery",
		Description:    "Deploy, hand over source and documentation",
		EstimatedHours: 4,
	}
)

// buildTemplates 每种项目类型的开发/测试里程碑
var buildTemplates = map[model.ProjectType][2]MilestoneTemplate{
	model.ProjectTypeWebApp: {
		{model.MilestoneDevelopment, "Web Application Development", "Build frontend, backend API and wallet integration", 80},
		{model.MilestoneTesting, "Web Application Testing", "Cross-browser, integration and end-to-end testing", 24},
	},
	model.ProjectTypeMobileApp: {
		{model.MilestoneDevelopment, "Mobile App Development", "Build iOS and Android clients with wallet connectivity", 120},
		{model.MilestoneTesting, "Mobile App Testing", "Device matrix testing and store submission checks", 40},
	},
	model.ProjectTypeSmartContract: {
		{model.MilestoneDevelopment, "Smart Contract Development", "Implement contracts and deployment scripts", 60},
		{model.MilestoneTesting, "Smart Contract Testing", "Unit tests, fuzzing and testnet deployment", 32},
	},
	model.ProjectTypeDeFiProtocol: {
		{model.MilestoneDevelopment, "DeFi Protocol Development", "Implement protocol contracts, oracles and liquidity logic", 160},
		{model.MilestoneTesting, "DeFi Protocol Testing", "Economic simulations, invariant tests and testnet launch", 60},
	},
	model.ProjectTypeNFTMarketplace: {
		{model.MilestoneDevelopment, "NFT Marketplace Development", "Implement minting, listing and trading flows", 100},
		{model.MilestoneTesting, "NFT Marketplace Testing", "Marketplace flow testing and metadata validation", 32},
	},
}

var customBuildTemplates = [2]MilestoneTemplate{
	{model.MilestoneDevelopment, "Development", "Implement the agreed scope", 80},
	{model.MilestoneTesting, "Testing", "Verify the implementation against the agreed scope", 24},
}

// MilestoneTemplates 给定项目类型的里程碑模板，顺序固定
func MilestoneTemplates(pt model.ProjectType) []MilestoneTemplate {
	build, ok := buildTemplates[pt]
	if !ok {
		build = customBuildTemplates
	}
	return []MilestoneTemplate{
		requirementsTemplate,
		designTemplate,
		build[0],
		build[1],
		qaTemplate,
		deliveryTemplate,
	}
}

// PlannedDate 第 index 个里程碑的计划日期
func PlannedDate(createdAt time.Time, index int) time.Time {
	days := defaultOffsetDays
	if index >= 0 && index < len(plannedOffsetDays) {
		days = plannedOffsetDays[index]
	}
	return createdAt.AddDate(0, 0, days)
}

func generateMilestones(order *model.Order, now time.Time) []*model.Milestone {
	templates := MilestoneTemplates(order.ProjectType)
	out := make([]*model.Milestone, 0, len(templates))
	for i, t := range templates {
		status := model.MilestoneStatusPending
		if i == 0 {
			status = model.MilestoneStatusInProgress
		}
		out = append(out, &model.Milestone{
			OrderID:        order.ID,
			Type:           t.Type,
			Title:          t.Title,
			Description:    t.Description,
			Sequence:       i + 1,
			PlannedDate:    PlannedDate(order.CreatedAt, i),
			Status:         status,
			EstimatedHours: t.EstimatedHours,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return out
}

// CreateMilestones 为订单生成里程碑计划；已有计划时原样返回
func (s *Service) CreateMilestones(ctx context.Context, orderID int) ([]model.Milestone, error) {
	ctx, span := otel.StartSpan(ctx, "orderflow.CreateMilestones")
	var err error
	defer func() { otel.EndSpan(span, err) }()

	log := logger.WithTrace(ctx, s.logger).With(zap.Int("order_id", orderID))

	var (
		result    []model.Milestone
		generated bool
		pt        model.ProjectType
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		pt = order.ProjectType

		existing, err := repo.ListMilestones(ctx, orderID)
		if err != nil {
			return fmt.Errorf("list milestones: %w", err)
		}
		if len(existing) > 0 {
			result = existing
			return nil
		}

		milestones := generateMilestones(order, s.now())
		if err := repo.InsertMilestones(ctx, milestones); err != nil {
			return fmt.Errorf("insert milestones: %w", err)
		}

		reached, err := s.reachedStatuses(ctx, repo, order)
		if err != nil {
			return err
		}
		for _, st := range reached {
			if _, err := s.completeMilestonesFor(ctx, repo, orderID, st); err != nil {
				return err
			}
		}

		result, err = repo.ListMilestones(ctx, orderID)
		if err != nil {
			return fmt.Errorf("list milestones: %w", err)
		}
		if err := repo.UpdateCurrentMilestone(ctx, orderID, currentMilestoneTitle(result), s.now()); err != nil {
			return fmt.Errorf("update current milestone: %w", err)
		}
		generated = true
		return nil
	})
	if err != nil {
		log.Error("Failed to create milestones", zap.Error(err))
		return nil, err
	}

	if generated {
		metrics.IncrementMilestonesGenerated(string(pt), len(result))
		s.cache.Invalidate(ctx, orderID)
		log.Info("Milestones generated",
			zap.String("project_type", string(pt)),
			zap.Int("count", len(result)),
		)
	} else {
		log.Debug("Milestones already exist, skipping generation", zap.Int("count", len(result)))
	}
	return result, nil
}

// reachedStatuses 订单经历过的状态，按时间先后，最后是当前状态。
// 计划晚于状态流转生成时（例如 APPROVED 事件触发），用它补齐已经过去的里程碑。
func (s *Service) reachedStatuses(ctx context.Context, repo Repository, order *model.Order) ([]model.OrderStatus, error) {
	updates, err := repo.ListStatusUpdates(ctx, order.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list status updates: %w", err)
	}
	out := make([]model.OrderStatus, 0, len(updates)+1)
	for i := len(updates) - 1; i >= 0; i-- {
		out = append(out, updates[i].NewStatus)
	}
	return append(out, order.Status), nil
}

// currentMilestoneTitle 第一个未完成的里程碑；全部完成时取最后一个
func currentMilestoneTitle(milestones []model.Milestone) string {
	for _, m := range milestones {
		if m.Status != model.MilestoneStatusCompleted {
			return m.Title
		}
	}
	if len(milestones) == 0 {
		return ""
	}
	return milestones[len(milestones)-1].Title
}
