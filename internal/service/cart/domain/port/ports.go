// internal/service/cart/domain/port/ports.go

// Package port 定义 cart 服务依赖的出站端口：下游服务网关和事件发布。
package port

import (
	"context"

	"mercado/internal/saga"
)

// ProductInfo 是下游返回的商品快照。
type ProductInfo struct {
	ID    uint    `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// ProductGateway 是对 product 服务的同步调用端口。
type ProductGateway interface {
	// ValidateStock 做结算前的库存预检。不足时返回
	// *saga.InsufficientStockError，商品缺失返回 *saga.NotFoundError。
	ValidateStock(ctx context.Context, quantities map[uint]int) error
	FindProductsByIDs(ctx context.Context, ids []uint) ([]ProductInfo, error)
}

// OrderDraft 是同步建单请求。
type OrderDraft struct {
	UserID        uint
	CorrelationID string
	PaymentMethod string
	Items         []OrderDraftItem
}

type OrderDraftItem struct {
	ProductID   uint
	ProductName string
	Quantity    int
	UnitPrice   float64
}

// OrderRef 是建单结果的轻量引用。
type OrderRef struct {
	OrderID uint
	Status  string
}

// OrderGateway 是对 order 服务的同步调用端口。
type OrderGateway interface {
	CreateOrder(ctx context.Context, draft OrderDraft) (OrderRef, error)
}

// EventPublisher 发布结算侧的 Saga 事件。
type EventPublisher interface {
	PublishCheckoutInitiated(ctx context.Context, evt saga.CheckoutInitiated) error
	PublishStockCommitRequested(ctx context.Context, evt saga.StockCommitRequested) error
}
