// internal/service/auth/interfaces/http_handler.go
package interfaces

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercado/internal/pkg/httpapi"
	"mercado/internal/service/auth/application"
	"mercado/internal/service/auth/infrastructure"
	"mercado/internal/service/auth/token"
)

// AuthHandler 封装 auth 服务的 HTTP 处理器。
type AuthHandler struct {
	service *application.AuthService
}

func NewAuthHandler(service *application.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("GET /api/auth/validate", h.handleValidate)
}

func extractCtx(r *http.Request) *http.Request {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return r.WithContext(ctx)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, infrastructure.ErrUsernameTaken) {
			httpapi.WriteJSON(w, http.StatusConflict, httpapi.ErrorBody{Error: err.Error()})
			return
		}
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, result)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, infrastructure.ErrBadCredentials) {
			httpapi.WriteJSON(w, http.StatusUnauthorized, httpapi.ErrorBody{Error: err.Error()})
			return
		}
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, result)
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpapi.WriteJSON(w, http.StatusUnauthorized, httpapi.ErrorBody{Error: err.Error()})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, pair)
}

// handleValidate 校验 Authorization: Bearer <token> 并返回载荷。
// 其余服务的网关层可以用它做集中校验。
func (h *AuthHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		httpapi.WriteJSON(w, http.StatusUnauthorized, httpapi.ErrorBody{Error: "missing bearer token"})
		return
	}
	claims, err := h.service.Validate(r.Context(), raw)
	if err != nil {
		httpapi.WriteJSON(w, http.StatusUnauthorized, httpapi.ErrorBody{Error: token.ErrInvalidToken.Error()})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct {
		UserID   uint   `json:"userId"`
		Username string `json:"username"`
	}{claims.UserID, claims.Username})
}
