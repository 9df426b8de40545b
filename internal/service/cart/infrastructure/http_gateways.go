// internal/service/cart/infrastructure/http_gateways.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"mercado/internal/pkg/httpclient"
	"mercado/internal/saga"
	"mercado/internal/service/cart/domain/port"
)

// HTTPProductGateway 通过服务间 HTTP 调用 product 服务。
type HTTPProductGateway struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPProductGateway(client *httpclient.Client, baseURL string) *HTTPProductGateway {
	return &HTTPProductGateway{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *HTTPProductGateway) ValidateStock(ctx context.Context, quantities map[uint]int) error {
	req := struct {
		ProductQuantities map[uint]int `json:"productQuantities"`
	}{ProductQuantities: quantities}

	err := g.client.PostJSON(ctx, g.baseURL+"/internal/stock/validate", req, nil)
	if err == nil {
		return nil
	}

	// 把下游的结构化拒绝还原成领域错误
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusConflict:
			var body struct {
				ProductID uint `json:"productId"`
				Required  int  `json:"required"`
				Available int  `json:"available"`
			}
			if jsonErr := json.Unmarshal(statusErr.Body, &body); jsonErr == nil && body.ProductID != 0 {
				return &saga.InsufficientStockError{
					ProductID: body.ProductID,
					Required:  body.Required,
					Available: body.Available,
				}
			}
		case http.StatusNotFound:
			return &saga.NotFoundError{Resource: "product", ID: "in stock pre-check"}
		}
	}
	return errors.Wrap(err, "validate stock")
}

func (g *HTTPProductGateway) FindProductsByIDs(ctx context.Context, ids []uint) ([]port.ProductInfo, error) {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	var infos []port.ProductInfo
	url := g.baseURL + "/internal/products?ids=" + strings.Join(parts, ",")
	if err := g.client.GetJSON(ctx, url, &infos); err != nil {
		return nil, errors.Wrap(err, "fetch products")
	}
	return infos, nil
}

// HTTPOrderGateway 通过服务间 HTTP 调用 order 服务。
type HTTPOrderGateway struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPOrderGateway(client *httpclient.Client, baseURL string) *HTTPOrderGateway {
	return &HTTPOrderGateway{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *HTTPOrderGateway) CreateOrder(ctx context.Context, draft port.OrderDraft) (port.OrderRef, error) {
	type itemPayload struct {
		ProductID   uint    `json:"productId"`
		ProductName string  `json:"productName"`
		Quantity    int     `json:"quantity"`
		UnitPrice   float64 `json:"unitPrice"`
	}
	req := struct {
		UserID        uint          `json:"userId"`
		CorrelationID string        `json:"correlationId"`
		PaymentMethod string        `json:"paymentMethod"`
		Items         []itemPayload `json:"items"`
	}{
		UserID:        draft.UserID,
		CorrelationID: draft.CorrelationID,
		PaymentMethod: draft.PaymentMethod,
	}
	for _, item := range draft.Items {
		req.Items = append(req.Items, itemPayload(item))
	}

	var resp struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	if err := g.client.PostJSON(ctx, g.baseURL+"/internal/orders", req, &resp); err != nil {
		return port.OrderRef{}, errors.Wrap(err, "create order")
	}
	return port.OrderRef{OrderID: resp.ID, Status: resp.Status}, nil
}
