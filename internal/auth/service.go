package auth

import (
	"context"
	"errors"
	"time"

	"orderflow/internal/model"
	"orderflow/pkg/util"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// AdminUserFinder 未找到时返回 nil, nil
type AdminUserFinder interface {
	FindAdminByEmail(ctx context.Context, email string) (*model.AdminUser, error)
}

type Service struct {
	users     AdminUserFinder
	jwtSecret string
	tokenTTL  time.Duration
}

func NewService(users AdminUserFinder, jwtSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// Login checks admin credentials and returns a JWT carrying the admin's role.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.AdminUser, error) {
	u, err := s.users.FindAdminByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if u == nil || !util.CheckPassword(password, u.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(u.ID, u.Role, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}
