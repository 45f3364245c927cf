package model

import "time"

// OrderPhase 工作阶段
type OrderPhase string

const (
	PhasePlanning    OrderPhase = "PLANNING"
	PhaseDesign      OrderPhase = "DESIGN"
	PhaseDevelopment OrderPhase = "DEVELOPMENT"
	PhaseTesting     OrderPhase = "TESTING"
	PhaseDeployment  OrderPhase = "DEPLOYMENT"
	PhaseReview      OrderPhase = "REVIEW"
)

// Valid 是否为已知阶段
func (p OrderPhase) Valid() bool {
	switch p {
	case PhasePlanning, PhaseDesign, PhaseDevelopment, PhaseTesting, PhaseDeployment, PhaseReview:
		return true
	}
	return false
}

// TimeTracking 订单在某个阶段的时间区间；EndedAt 为空表示仍在进行
type TimeTracking struct {
	ID              int        `json:"id"`
	OrderID         int        `json:"order_id"`
	Phase           OrderPhase `json:"phase"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

// Open 是否仍未结束
func (t TimeTracking) Open() bool {
	return t.EndedAt == nil
}
