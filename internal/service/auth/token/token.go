// internal/service/auth/token/token.go

// Package token 负责 JWT 访问/刷新令牌的签发与校验。
// 两类令牌使用不同的密钥：刷新令牌泄露不等于访问令牌密钥泄露。
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// ErrInvalidToken 表示令牌无效、过期或类型不符。
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims 是两类令牌共用的载荷。
type Claims struct {
	UserID    uint   `json:"userId"`
	Username  string `json:"username"`
	TokenType string `json:"tokenType"` // "access" | "refresh"
	jwt.RegisteredClaims
}

// Pair 是一次签发的访问+刷新令牌。
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // 访问令牌剩余秒数
}

// Helper 持有密钥与有效期配置。
type Helper struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpire  time.Duration
	refreshExpire time.Duration
}

func NewHelper(accessSecret, refreshSecret string, accessExpire, refreshExpire time.Duration) *Helper {
	return &Helper{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessExpire:  accessExpire,
		refreshExpire: refreshExpire,
	}
}

func (h *Helper) sign(userID uint, username, tokenType string, secret []byte, expire time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expire)),
			Issuer:    "mercado-auth",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// GeneratePair 为用户签发一对新令牌。
func (h *Helper) GeneratePair(userID uint, username string) (Pair, error) {
	access, err := h.sign(userID, username, "access", h.accessSecret, h.accessExpire)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := h.sign(userID, username, "refresh", h.refreshSecret, h.refreshExpire)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(h.accessExpire.Seconds()),
	}, nil
}

func (h *Helper) parse(raw, wantType string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseAccess 校验访问令牌。
func (h *Helper) ParseAccess(raw string) (*Claims, error) {
	return h.parse(raw, "access", h.accessSecret)
}

// ParseRefresh 校验刷新令牌。
func (h *Helper) ParseRefresh(raw string) (*Claims, error) {
	return h.parse(raw, "refresh", h.refreshSecret)
}
