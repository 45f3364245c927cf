package rbac

// 权限常量
const (
	PermissionReadOrder        = "order:read"
	PermissionCreateOrder      = "order:create"
	PermissionUpdateStatus     = "order:update_status"
	PermissionManageMilestones = "order:manage_milestones"
	PermissionTrackPhase       = "order:track_phase"
	PermissionQualityCheck     = "order:quality_check"
)

// 角色常量
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleViewer: {
		PermissionReadOrder,
	},
	RoleOperator: {
		PermissionReadOrder,
		PermissionTrackPhase,
		PermissionQualityCheck,
		PermissionManageMilestones,
	},
	RoleAdmin: {
		PermissionReadOrder,
		PermissionCreateOrder,
		PermissionUpdateStatus,
		PermissionManageMilestones,
		PermissionTrackPhase,
		PermissionQualityCheck,
	},
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID int, role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// ValidRole 角色是否已定义
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
