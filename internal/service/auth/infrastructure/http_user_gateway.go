// internal/service/auth/infrastructure/http_user_gateway.go
package infrastructure

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"mercado/internal/pkg/httpclient"
	"mercado/internal/service/auth/port"
)

// ErrBadCredentials 对应 user 服务的 401 应答。
var ErrBadCredentials = errors.New("invalid username or password")

// ErrUsernameTaken 对应 user 服务的 409 应答。
var ErrUsernameTaken = errors.New("username already taken")

// HTTPUserGateway 通过服务间 HTTP 调用 user 服务。
type HTTPUserGateway struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPUserGateway(client *httpclient.Client, baseURL string) *HTTPUserGateway {
	return &HTTPUserGateway{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *HTTPUserGateway) CreateUser(ctx context.Context, username, email, password string) (port.UserInfo, error) {
	req := struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}{username, email, password}

	var info port.UserInfo
	err := g.client.PostJSON(ctx, g.baseURL+"/internal/users", req, &info)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
			return port.UserInfo{}, ErrUsernameTaken
		}
		return port.UserInfo{}, errors.Wrap(err, "create user")
	}
	return info, nil
}

func (g *HTTPUserGateway) VerifyCredentials(ctx context.Context, username, password string) (port.UserInfo, error) {
	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: username, Password: password}

	var info port.UserInfo
	err := g.client.PostJSON(ctx, g.baseURL+"/internal/users/verify", req, &info)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return port.UserInfo{}, ErrBadCredentials
		}
		return port.UserInfo{}, errors.Wrap(err, "verify credentials")
	}
	return info, nil
}
