// internal/service/auth/port/ports.go

// Package port 定义 auth 服务依赖的出站端口。
package port

import "context"

// UserInfo 是 user 服务返回的用户快照。
type UserInfo struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserGateway 是对 user 服务的同步调用端口。
type UserGateway interface {
	CreateUser(ctx context.Context, username, email, password string) (UserInfo, error)
	VerifyCredentials(ctx context.Context, username, password string) (UserInfo, error)
}
