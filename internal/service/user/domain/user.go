// internal/service/user/domain/user.go

// Package domain 定义用户聚合。密码只以 bcrypt 哈希形式存在，
// 明文在哈希完成后即被丢弃。
package domain

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials 表示用户名或密码不匹配。
// 对外只暴露这一种失败，不区分"用户不存在"和"密码错误"。
var ErrInvalidCredentials = errors.New("invalid username or password")

type User struct {
	ID           uint
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser 创建用户并哈希密码。
func NewUser(username, email, password string) (*User, error) {
	if username == "" {
		return nil, errors.New("username must not be empty")
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	return &User{Username: username, Email: email, PasswordHash: string(hash)}, nil
}

// CheckPassword 校验明文密码。
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// SetPassword 重新哈希并替换密码。
func (u *User) SetPassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	u.PasswordHash = string(hash)
	return nil
}

// UserRepository 是用户聚合的持久化端口。
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uint) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]User, error)
	Save(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uint) error
}
