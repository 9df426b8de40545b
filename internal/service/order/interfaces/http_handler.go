// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercado/internal/pkg/httpapi"
	"mercado/internal/service/order/application"
	"mercado/internal/service/order/domain"
)

// OrderHandler 封装 order 服务的 HTTP 处理器。
type OrderHandler struct {
	service      *application.OrderService
	serviceToken string
}

func NewOrderHandler(service *application.OrderService, serviceToken string) *OrderHandler {
	return &OrderHandler{service: service, serviceToken: serviceToken}
}

func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/orders/{id}", h.handleGet)
	mux.HandleFunc("GET /api/orders", h.handleList)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.handleCancel)
	mux.HandleFunc("POST /api/orders/{id}/confirm", h.handleConfirm)

	// 建单只允许服务间调用：订单在结算流程里由 cart 服务创建
	mux.HandleFunc("POST /internal/orders",
		httpapi.RequireServiceToken(h.serviceToken, h.handleCreate))
}

type orderItemView struct {
	ProductID   uint    `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

type orderResponse struct {
	ID            uint            `json:"id"`
	UserID        uint            `json:"userId"`
	CorrelationID string          `json:"correlationId"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
	TotalAmount   float64         `json:"totalAmount"`
	CancelReason  string          `json:"cancelReason,omitempty"`
	Items         []orderItemView `json:"items"`
}

func toResponse(o *domain.Order) orderResponse {
	items := make([]orderItemView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		CorrelationID: o.CorrelationID,
		Status:        string(o.Status),
		PaymentMethod: o.PaymentMethod,
		TotalAmount:   o.TotalAmount,
		CancelReason:  o.CancelReason,
		Items:         items,
	}
}

func extractCtx(r *http.Request) *http.Request {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return r.WithContext(ctx)
}

func pathID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *OrderHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	var req application.CreateOrderRequest
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toResponse(order))
}

func (h *OrderHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, ok := pathID(r)
	if !ok {
		httpapi.WriteBadRequest(w, "invalid order id")
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(order))
}

func (h *OrderHandler) handleList(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	userID, err := strconv.ParseUint(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID == 0 {
		httpapi.WriteBadRequest(w, "userId query parameter required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, err := h.service.ListOrders(r.Context(), uint(userID), limit, offset)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toResponse(&orders[i]))
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, ok := pathID(r)
	if !ok {
		httpapi.WriteBadRequest(w, "invalid order id")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	// 取消原因可选，空请求体也接受
	if r.ContentLength > 0 {
		if !httpapi.DecodeJSON(w, r, &req) {
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}
	order, err := h.service.CancelOrder(r.Context(), id, req.Reason)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(order))
}

func (h *OrderHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, ok := pathID(r)
	if !ok {
		httpapi.WriteBadRequest(w, "invalid order id")
		return
	}
	order, err := h.service.ConfirmOrder(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(order))
}
