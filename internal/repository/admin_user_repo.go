package repository

import (
	"context"
	"errors"

	"orderflow/internal/model"
	"orderflow/pkg/otel"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type AdminUserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAdminUserRepository(db *pgxpool.Pool, logger *zap.Logger) *AdminUserRepository {
	return &AdminUserRepository{db: db, logger: logger}
}

// FindAdminByEmail 未找到时返回 nil, nil
func (r *AdminUserRepository) FindAdminByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	query := `SELECT id, email, password_hash, role, created_at FROM admin_users WHERE email = $1`

	var u model.AdminUser
	err := otel.WithDBSpan(ctx, "select", "admin_users", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find admin user", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	return &u, nil
}

// Upsert 创建管理员，邮箱已存在时更新密码和角色
func (r *AdminUserRepository) Upsert(ctx context.Context, u *model.AdminUser) error {
	query := `
        INSERT INTO admin_users (email, password_hash, role)
        VALUES ($1, $2, $3)
        ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role
        RETURNING id, created_at
    `
	return otel.WithDBSpan(ctx, "upsert", "admin_users", func(ctx context.Context) error {
		if err := r.db.QueryRow(ctx, query, u.Email, u.PasswordHash, u.Role).Scan(&u.ID, &u.CreatedAt); err != nil {
			r.logger.Error("Failed to upsert admin user", zap.String("email", u.Email), zap.Error(err))
			return err
		}
		r.logger.Info("Admin user saved", zap.Int("id", u.ID), zap.String("role", u.Role))
		return nil
	})
}
