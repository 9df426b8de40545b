// internal/service/product/interfaces/http_handler.go
package interfaces

import (
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercado/internal/pkg/httpapi"
	"mercado/internal/service/product/application"
	"mercado/internal/service/product/domain"
)

// ProductHandler 封装 product 服务的 HTTP 处理器。
type ProductHandler struct {
	service      *application.ProductService
	serviceToken string
}

func NewProductHandler(service *application.ProductService, serviceToken string) *ProductHandler {
	return &ProductHandler{service: service, serviceToken: serviceToken}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
// /internal/* 只接受携带服务凭证的服务间调用。
func (h *ProductHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/products", h.handleCreate)
	mux.HandleFunc("GET /api/products", h.handleList)
	mux.HandleFunc("GET /api/products/{id}", h.handleGet)
	mux.HandleFunc("PUT /api/products/{id}", h.handleUpdate)
	mux.HandleFunc("PUT /api/products/{id}/stock", h.handleUpdateStock)
	mux.HandleFunc("DELETE /api/products/{id}", h.handleDelete)

	mux.HandleFunc("POST /internal/stock/validate",
		httpapi.RequireServiceToken(h.serviceToken, h.handleValidateStock))
	mux.HandleFunc("GET /internal/products",
		httpapi.RequireServiceToken(h.serviceToken, h.handleBatchGet))
}

type productResponse struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
}

func toResponse(p *domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
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

func (h *ProductHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		Stock       int     `json:"stock"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), req.Name, req.Description, req.Price, req.Stock)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toResponse(product))
}

func (h *ProductHandler) handleList(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	products, err := h.service.ListProducts(r.Context(), limit, offset)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, toResponse(&products[i]))
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (h *ProductHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, ok := pathID(r)
	if !ok {
		httpapi.WriteBadRequest(w, "invalid product id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(product))
}

func (h *ProductHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, ok := pathID(r)
	if !ok {
		httpapi.WriteBadRequest(w, "invalid product id")
		return
	}
	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, req.Name, req.Description, req.Price)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(product))
}

func (h *ProductHandler) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, ok := pathID(r)
	if !ok {
		httpapi.WriteBadRequest(w, "invalid product id")
		return
	}
	var req struct {
		Stock int `json:"stock"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	product, err := h.service.UpdateStock(r.Context(), id, req.Stock)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(product))
}

func (h *ProductHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	id, ok := pathID(r)
	if !ok {
		httpapi.WriteBadRequest(w, "invalid product id")
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleValidateStock 是结算同步预检的服务间端点。
// 200 表示此刻全部满足（附库存快照），409 表示某个商品不足。
func (h *ProductHandler) handleValidateStock(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	var req struct {
		ProductQuantities map[uint]int `json:"productQuantities"`
	}
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	if len(req.ProductQuantities) == 0 {
		httpapi.WriteBadRequest(w, "productQuantities must not be empty")
		return
	}
	snapshot, err := h.service.CheckSufficiency(r.Context(), req.ProductQuantities)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	type stockView struct {
		ProductID uint `json:"productId"`
		Available int  `json:"available"`
	}
	resp := struct {
		Sufficient bool        `json:"sufficient"`
		Stocks     []stockView `json:"stocks"`
	}{Sufficient: true}
	for i := range snapshot {
		resp.Stocks = append(resp.Stocks, stockView{ProductID: snapshot[i].ID, Available: snapshot[i].Stock})
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

// handleBatchGet 批量返回商品快照，cart 服务用它补全条目信息。
func (h *ProductHandler) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	r = extractCtx(r)
	raw := strings.Split(r.URL.Query().Get("ids"), ",")
	ids := make([]uint, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		httpapi.WriteBadRequest(w, "ids query parameter required")
		return
	}
	products, err := h.service.FindProductsByIDs(r.Context(), ids)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, toResponse(&products[i]))
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}
