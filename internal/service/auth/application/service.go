// internal/service/auth/application/service.go

// Package application 编排注册、登录和令牌生命周期。
// 用户数据归 user 服务所有，auth 只负责凭证校验的编排和令牌签发。
package application

import (
	"context"

	"mercado/internal/pkg/logger"
	"mercado/internal/service/auth/port"
	"mercado/internal/service/auth/token"
)

type AuthService struct {
	users  port.UserGateway
	tokens *token.Helper
}

func NewAuthService(users port.UserGateway, tokens *token.Helper) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// AuthResult 是注册/登录的应答：用户信息加一对令牌。
type AuthResult struct {
	User   port.UserInfo `json:"user"`
	Tokens token.Pair    `json:"tokens"`
}

// Register 创建用户并直接签发令牌。
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	user, err := s.users.CreateUser(ctx, username, email, password)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.GeneratePair(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}

// Login 校验凭证并签发令牌。
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.VerifyCredentials(ctx, username, password)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.GeneratePair(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Uint("user_id", user.ID).Msg("user logged in")
	return &AuthResult{User: user, Tokens: pair}, nil
}

// Refresh 用刷新令牌换一对新令牌。
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return token.Pair{}, err
	}
	return s.tokens.GeneratePair(claims.UserID, claims.Username)
}

// Validate 校验访问令牌并返回其载荷。
func (s *AuthService) Validate(_ context.Context, accessToken string) (*token.Claims, error) {
	return s.tokens.ParseAccess(accessToken)
}
