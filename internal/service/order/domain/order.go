// internal/service/order/domain/order.go

// Package domain 定义订单聚合和它的状态机。
// 状态迁移只有两条合法路径：PENDING→CONFIRMED、PENDING→CANCELLED。
// 到自身的迁移是幂等 no-op（取消一个已取消的订单不是错误）。
package domain

import (
	"time"

	"mercado/internal/saga"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// OrderItem 是下单时刻的商品快照，单价在此后不再随商品变动。
type OrderItem struct {
	ID          uint
	OrderID     uint
	ProductID   uint
	ProductName string
	Quantity    int
	UnitPrice   float64
}

// Order 是订单聚合根。CorrelationID 把它和发起它的那次结算 Saga 绑定。
type Order struct {
	ID            uint
	UserID        uint
	CorrelationID string
	Status        OrderStatus
	PaymentMethod string
	TotalAmount   float64
	CancelReason  string
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOrder 创建一个 PENDING 订单并计算总额。
func NewOrder(userID uint, correlationID, paymentMethod string, items []OrderItem) *Order {
	var total float64
	for _, item := range items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return &Order{
		UserID:        userID,
		CorrelationID: correlationID,
		PaymentMethod: paymentMethod,
		Status:        StatusPending,
		TotalAmount:   total,
		Items:         items,
	}
}

// Cancel 把订单转入 CANCELLED。
// 已取消的订单再次取消是幂等 no-op；已确认的订单不可取消。
func (o *Order) Cancel(reason string) error {
	switch o.Status {
	case StatusCancelled:
		return nil
	case StatusConfirmed:
		return &saga.InvalidTransitionError{From: string(o.Status), To: string(StatusCancelled)}
	}
	o.Status = StatusCancelled
	o.CancelReason = reason
	return nil
}

// Confirm 把订单转入 CONFIRMED。重复确认是幂等 no-op。
func (o *Order) Confirm() error {
	switch o.Status {
	case StatusConfirmed:
		return nil
	case StatusCancelled:
		return &saga.InvalidTransitionError{From: string(o.Status), To: string(StatusConfirmed)}
	}
	o.Status = StatusConfirmed
	return nil
}

// LineItems 把订单条目投影成事件里的商品行。
func (o *Order) LineItems() []saga.LineItem {
	items := make([]saga.LineItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, saga.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return items
}
