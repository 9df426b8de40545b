// internal/service/cart/interfaces/http_handler.go
package interfaces

import (
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercado/internal/pkg/httpapi"
	"mercado/internal/service/cart/application"
)

// CartHandler 封装 cart 服务的 HTTP 处理器。
type CartHandler struct {
	service *application.CartService
}

func NewCartHandler(service *application.CartService) *CartHandler {
	return &CartHandler{service: service}
}

func (h *CartHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/carts/{userId}", h.handleGet)
	mux.HandleFunc("POST /api/carts/{userId}/items", h.handleAddItem)
	mux.HandleFunc("PUT /api/carts/{userId}/items/{productId}", h.handleSetQuantity)
	mux.HandleFunc("DELETE /api/carts/{userId}/items/{productId}", h.handleRemoveItem)
	mux.HandleFunc("DELETE /api/carts/{userId}", h.handleClear)
	mux.HandleFunc("POST /api/carts/{userId}/checkout", h.handleCheckout)
}

func extractCtx(r *http.Request) *http.Request {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return r.WithContext(ctx)
}

func pathUint(r *http.Request, name string) (uint, bool) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func (h *CartHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	userID, ok := pathUint(r, "userId")
	if !ok {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	view, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	userID, ok := pathUint(r, "userId")
	if !ok {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	var req struct {
		ProductID uint `json:"productId"`
		Quantity  int  `json:"quantity"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == 0 || req.Quantity <= 0 {
		httpapi.WriteBadRequest(w, "productId and positive quantity required")
		return
	}
	view, err := h.service.AddItem(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	userID, ok := pathUint(r, "userId")
	if !ok {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	productID, ok := pathUint(r, "productId")
	if !ok {
		httpapi.WriteBadRequest(w, "invalid product id")
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	view, err := h.service.SetItemQuantity(r.Context(), userID, productID, req.Quantity)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	userID, ok := pathUint(r, "userId")
	if !ok {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	productID, ok := pathUint(r, "productId")
	if !ok {
		httpapi.WriteBadRequest(w, "invalid product id")
		return
	}
	view, err := h.service.RemoveItem(r.Context(), userID, productID)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	userID, ok := pathUint(r, "userId")
	if !ok {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	if err := h.service.ClearCart(r.Context(), userID); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckout 发起结算。202：订单已创建、扣减在途。
func (h *CartHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	userID, ok := pathUint(r, "userId")
	if !ok {
		httpapi.WriteBadRequest(w, "invalid user id")
		return
	}
	var req struct {
		PaymentMethod string `json:"paymentMethod"`
	}
	if r.ContentLength > 0 {
		if !httpapi.DecodeJSON(w, r, &req) {
			return
		}
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "card"
	}
	result, err := h.service.Checkout(r.Context(), userID, req.PaymentMethod)
	if err != nil {
		if errors.Is(err, application.ErrEmptyCart) {
			httpapi.WriteBadRequest(w, err.Error())
			return
		}
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, result)
}
