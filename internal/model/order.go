package model

import "time"

// ProjectType 订单的项目类型
type ProjectType string

const (
	ProjectTypeWebApp         ProjectType = "WEB_APP"
	ProjectTypeMobileApp      ProjectType = "MOBILE_APP"
	ProjectTypeSmartContract  ProjectType = "SMART_CONTRACT"
	ProjectTypeDeFiProtocol   ProjectType = "DEFI_PROTOCOL"
	ProjectTypeNFTMarketplace ProjectType = "NFT_MARKETPLACE"
	ProjectTypeCustom         ProjectType = "CUSTOM"
)

// Valid 是否为已知项目类型
func (p ProjectType) Valid() bool {
	switch p {
	case ProjectTypeWebApp, ProjectTypeMobileApp, ProjectTypeSmartContract,
		ProjectTypeDeFiProtocol, ProjectTypeNFTMarketplace, ProjectTypeCustom:
		return true
	}
	return false
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "PENDING"
	OrderStatusApproved          OrderStatus = "APPROVED"
	OrderStatusInProgress        OrderStatus = "IN_PROGRESS"
	OrderStatusReview            OrderStatus = "REVIEW"
	OrderStatusRevisionRequested OrderStatus = "REVISION_REQUESTED"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
	OrderStatusDelivered         OrderStatus = "DELIVERED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

// AllOrderStatuses 按流程顺序排列
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusApproved,
	OrderStatusInProgress,
	OrderStatusReview,
	OrderStatusRevisionRequested,
	OrderStatusCompleted,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid 是否为已知状态
func (s OrderStatus) Valid() bool {
	for _, known := range AllOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Order 一笔应用构建订单
type Order struct {
	ID               int         `json:"id"`
	ClientID         int         `json:"client_id"`
	Title            string      `json:"title"`
	ProjectType      ProjectType `json:"project_type"`
	Status           OrderStatus `json:"status"`
	Progress         int         `json:"progress"`          // 0-100，由状态决定
	CurrentMilestone string      `json:"current_milestone"` // 展示用的当前阶段名称
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}
