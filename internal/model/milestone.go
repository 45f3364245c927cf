package model

import "time"

// OrderMilestoneType 里程碑类型
type OrderMilestoneType string

const (
	MilestoneRequirementsGathering OrderMilestoneType = "REQUIREMENTS_GATHERING"
	MilestoneDesignApproval        OrderMilestoneType = "DESIGN_APPROVAL"
	MilestoneDevelopment           OrderMilestoneType = "DEVELOPMENT"
	MilestoneTesting               OrderMilestoneType = "TESTING"
	MilestoneQualityAssurance      OrderMilestoneType = "QUALITY_ASSURANCE"
	MilestoneFinalDelivery         OrderMilestoneType = "FINAL_DELIVERY"
)

// MilestoneStatus 里程碑状态
type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "PENDING"     // 待开始
	MilestoneStatusInProgress MilestoneStatus = "IN_PROGRESS" // 进行中
	MilestoneStatusCompleted  MilestoneStatus = "COMPLETED"   // 已完成
)

// Milestone 订单里程碑，只会流转不会删除
type Milestone struct {
	ID             int                `json:"id"`
	OrderID        int                `json:"order_id"`
	Type           OrderMilestoneType `json:"type"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Sequence       int                `json:"sequence"`
	PlannedDate    time.Time          `json:"planned_date"`
	ActualDate     *time.Time         `json:"actual_date,omitempty"`
	Status         MilestoneStatus    `json:"status"`
	EstimatedHours int                `json:"estimated_hours"`
	Notes          string             `json:"notes"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// OverdueMilestone 逾期里程碑（定时任务扫描结果）
type OverdueMilestone struct {
	MilestoneID int                `json:"milestone_id"`
	OrderID     int                `json:"order_id"`
	Type        OrderMilestoneType `json:"type"`
	Title       string             `json:"title"`
	PlannedDate time.Time          `json:"planned_date"`
}
