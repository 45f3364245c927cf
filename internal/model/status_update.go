package model

import "time"

// StatusUpdateTrigger 状态变更的触发来源
type StatusUpdateTrigger string

const (
	TriggerManual             StatusUpdateTrigger = "MANUAL"
	TriggerAutomatic          StatusUpdateTrigger = "AUTOMATIC"
	TriggerMilestoneCompleted StatusUpdateTrigger = "MILESTONE_COMPLETED"
	TriggerQualityCheck       StatusUpdateTrigger = "QUALITY_CHECK"
	TriggerClientRequest      StatusUpdateTrigger = "CLIENT_REQUEST"
	TriggerSystem             StatusUpdateTrigger = "SYSTEM"
)

// Valid 是否为已知触发来源
func (t StatusUpdateTrigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerAutomatic, TriggerMilestoneCompleted,
		TriggerQualityCheck, TriggerClientRequest, TriggerSystem:
		return true
	}
	return false
}

// StatusUpdate 状态变更审计记录，只追加
type StatusUpdate struct {
	ID        int                 `json:"id"`
	OrderID   int                 `json:"order_id"`
	OldStatus OrderStatus         `json:"old_status"`
	NewStatus OrderStatus         `json:"new_status"`
	Trigger   StatusUpdateTrigger `json:"trigger"`
	Metadata  map[string]any      `json:"metadata"`
	CreatedAt time.Time           `json:"created_at"`
}
