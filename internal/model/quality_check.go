package model

import "time"

// QualityCheckType 质检类型
type QualityCheckType string

const (
	QualityCheckCodeReview       QualityCheckType = "CODE_REVIEW"
	QualityCheckFunctionalTest   QualityCheckType = "FUNCTIONAL_TEST"
	QualityCheckSecurityAudit    QualityCheckType = "SECURITY_AUDIT"
	QualityCheckPerformanceTest  QualityCheckType = "PERFORMANCE_TEST"
	QualityCheckUIUXReview       QualityCheckType = "UI_UX_REVIEW"
	QualityCheckClientAcceptance QualityCheckType = "CLIENT_ACCEPTANCE"
)

// Valid 是否为已知质检类型
func (t QualityCheckType) Valid() bool {
	switch t {
	case QualityCheckCodeReview, QualityCheckFunctionalTest, QualityCheckSecurityAudit,
		QualityCheckPerformanceTest, QualityCheckUIUXReview, QualityCheckClientAcceptance:
		return true
	}
	return false
}

// QualityStatus 质检状态
type QualityStatus string

const (
	QualityStatusPending    QualityStatus = "PENDING"
	QualityStatusInProgress QualityStatus = "IN_PROGRESS"
	QualityStatusPassed     QualityStatus = "PASSED"
	QualityStatusFailed     QualityStatus = "FAILED"
	QualityStatusWaived     QualityStatus = "WAIVED"
)

// Final 是否为终态
func (s QualityStatus) Final() bool {
	return s == QualityStatusPassed || s == QualityStatusFailed || s == QualityStatusWaived
}

// QualityCheck 订单质检记录
type QualityCheck struct {
	ID          int              `json:"id"`
	OrderID     int              `json:"order_id"`
	CheckType   QualityCheckType `json:"check_type"`
	Automated   bool             `json:"automated"`
	Status      QualityStatus    `json:"status"`
	Score       *int             `json:"score,omitempty"`
	Notes       string           `json:"notes"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
