// internal/service/user/application/service.go

// Package application 编排用户用例。注册由 auth 服务通过服务间
// 调用转发过来，凭证校验也只对持有服务凭证的调用方开放。
package application

import (
	"context"

	"mercado/internal/pkg/logger"
	"mercado/internal/saga"
	"mercado/internal/service/user/domain"
)

type UserService struct {
	repo domain.UserRepository
}

func NewUserService(repo domain.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	user, err := domain.NewUser(username, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Uint("user_id", id).Msg("user deleted")
	return nil
}

func (s *UserService) UpdateEmail(ctx context.Context, id uint, email string) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Email = email
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) ChangePassword(ctx context.Context, id uint, oldPassword, newPassword string) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !user.CheckPassword(oldPassword) {
		return domain.ErrInvalidCredentials
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	return s.repo.Save(ctx, user)
}

// VerifyCredentials 校验用户名密码，auth 服务签发令牌前调用。
// 用户不存在和密码错误返回同一个错误，不给枚举用户名留口子。
func (s *UserService) VerifyCredentials(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if saga.IsNotFound(err) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.CheckPassword(password) {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}
