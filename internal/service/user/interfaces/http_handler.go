// internal/service/user/interfaces/http_handler.go
package interfaces

import (
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercado/internal/pkg/httpapi"
	"mercado/internal/service/user/application"
	"mercado/internal/service/user/domain"
	"mercado/internal/service/user/infrastructure"
)

// UserHandler 封装 user 服务的 HTTP 处理器。
// 注册和凭证校验只接受来自 auth 服务的服务间调用。
type UserHandler struct {
	service      *application.UserService
	serviceToken string
}

func NewUserHandler(service *application.UserService, serviceToken string) *UserHandler {
	return &UserHandler{service: service, serviceToken: serviceToken}
}

func (h *UserHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", h.handleList)
	mux.HandleFunc("GET /api/users/{id}", h.handleGet)
	mux.HandleFunc("PUT /api/users/{id}/email", h.handleUpdateEmail)
	mux.HandleFunc("PUT /api/users/{id}/password", h.handleChangePassword)
	mux.HandleFunc("DELETE /api/users/{id}", h.handleDelete)

	mux.HandleFunc("POST /internal/users",
		httpapi.RequireServiceToken(h.serviceToken, h.handleCreate))
	mux.HandleFunc("POST /internal/users/verify",
		httpapi.RequireServiceToken(h.serviceToken, h.handleVerify))
}

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func toResponse(u *domain.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

func extractCtx(r *http.Request) *http.Request {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return r.WithContext(ctx)
}

func (h *UserHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	user, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, infrastructure.ErrUsernameTaken) {
			httpapi.WriteJSON(w, http.StatusConflict, httpapi.ErrorBody{Error: err.Error()})
			return
		}
		httpapi.WriteBadRequest(w, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toResponse(user))
}

func (h *UserHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	user, err := h.service.VerifyCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			httpapi.WriteJSON(w, http.StatusUnauthorized, httpapi.ErrorBody{Error: err.Error()})
			return
		}
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(user))
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	user, err2 := h.service.GetUser(r.Context(), uint(id))
	if err2 != nil {
		httpapi.WriteError(w, r, err2)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(user))
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	users, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toResponse(&users[i]))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

func (h *UserHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	if err := h.service.DeleteUser(r.Context(), uint(id)); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	user, err2 := h.service.UpdateEmail(r.Context(), uint(id), req.Email)
	if err2 != nil {
		httpapi.WriteError(w, r, err2)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(user))
}

func (h *UserHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.service.ChangePassword(r.Context(), uint(id), req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			httpapi.WriteJSON(w, http.StatusUnauthorized, httpapi.ErrorBody{Error: err.Error()})
			return
		}
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
