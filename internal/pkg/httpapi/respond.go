// internal/pkg/httpapi/respond.go

// Package httpapi 收拢各服务 HTTP 接口层共用的请求解码、
// 响应编码和错误到状态码的映射。
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"mercado/internal/pkg/httpclient"
	"mercado/internal/pkg/logger"
	"mercado/internal/saga"
)

// ErrorBody 是所有错误响应的统一结构。
type ErrorBody struct {
	Error     string `json:"error"`
	ProductID uint   `json:"productId,omitempty"`
	Required  int    `json:"required,omitempty"`
	Available int    `json:"available,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// WriteError 按错误类别映射 HTTP 状态码。
// 库存不足带上结构化明细，调用方（和它的用户）需要知道差多少。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *saga.InsufficientStockError
	if errors.As(err, &insufficient) {
		WriteJSON(w, http.StatusConflict, ErrorBody{
			Error:     "insufficient_stock",
			ProductID: insufficient.ProductID,
			Required:  insufficient.Required,
			Available: insufficient.Available,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case saga.IsNotFound(err):
		status = http.StatusNotFound
	case saga.IsInvalidTransition(err):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	WriteJSON(w, status, ErrorBody{Error: err.Error()})
}

// WriteBadRequest 用于请求体/参数解析失败。
func WriteBadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: msg})
}

// DecodeJSON 解码请求体，失败时直接写出 400 并返回 false。
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteBadRequest(w, "invalid request body")
		return false
	}
	return true
}

// RequireServiceToken 保护仅限服务间调用的内部端点。
func RequireServiceToken(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token == "" || r.Header.Get(httpclient.HeaderServiceToken) != token {
			WriteJSON(w, http.StatusForbidden, ErrorBody{Error: "service token required"})
			return
		}
		next(w, r)
	}
}
