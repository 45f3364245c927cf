package mq

import "time"

// OrderStatusChangedPayload order.status_changed
type OrderStatusChangedPayload struct {
	OrderID     int            `json:"order_id"`
	ClientID    int            `json:"client_id"`
	ProjectType string         `json:"project_type"`
	OldStatus   string         `json:"old_status"`
	NewStatus   string         `json:"new_status"`
	Trigger     string         `json:"trigger"`
	Progress    int            `json:"progress"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ChangedAt   time.Time      `json:"changed_at"`
	TraceID     string         `json:"trace_id,omitempty"`
}

// QualityCheckCompletedPayload quality_check.completed
type QualityCheckCompletedPayload struct {
	CheckID   int       `json:"check_id"`
	OrderID   int       `json:"order_id"`
	CheckType string    `json:"check_type"`
	Automated bool      `json:"automated"`
	Status    string    `json:"status"`
	Score     *int      `json:"score,omitempty"`
	At        time.Time `json:"at"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// MilestoneOverduePayload milestone.overdue
type MilestoneOverduePayload struct {
	MilestoneID int       `json:"milestone_id"`
	OrderID     int       `json:"order_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	PlannedDate time.Time `json:"planned_date"`
	DaysLate    int       `json:"days_late"`
}
