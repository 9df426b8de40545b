// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"mercado/internal/service/order/domain"
)

// OrderModel 是 orders 表的 GORM 模型。
type OrderModel struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        uint   `gorm:"index;not null"`
	CorrelationID string `gorm:"size:64;uniqueIndex;not null"`
	Status        string `gorm:"size:16;not null"`
	PaymentMethod string `gorm:"size:32"`
	TotalAmount   float64
	CancelReason  string           `gorm:"size:255"`
	Items         []OrderItemModel `gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}

type OrderItemModel struct {
	ID          uint `gorm:"primaryKey"`
	OrderID     uint `gorm:"index;not null"`
	ProductID   uint `gorm:"not null"`
	ProductName string `gorm:"size:255"`
	Quantity    int  `gorm:"not null"`
	UnitPrice   float64
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

// CheckoutAuditModel 记录每次结算发起，按 correlation_id 去重。
type CheckoutAuditModel struct {
	ID            uint   `gorm:"primaryKey"`
	CorrelationID string `gorm:"size:64;uniqueIndex;not null"`
	CartID        uint
	UserID        uint `gorm:"index"`
	Payload       []byte `gorm:"type:blob"`
	CreatedAt     time.Time
}

func (CheckoutAuditModel) TableName() string {
	return "checkout_audits"
}

func toDomainOrder(m *OrderModel) *domain.Order {
	items := make([]domain.OrderItem, 0, len(m.Items))
	for _, item := range m.Items {
		items = append(items, domain.OrderItem{
			ID:          item.ID,
			OrderID:     item.OrderID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return &domain.Order{
		ID:            m.ID,
		UserID:        m.UserID,
		CorrelationID: m.CorrelationID,
		Status:        domain.OrderStatus(m.Status),
		PaymentMethod: m.PaymentMethod,
		TotalAmount:   m.TotalAmount,
		CancelReason:  m.CancelReason,
		Items:         items,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func fromDomainOrder(o *domain.Order) *OrderModel {
	items := make([]OrderItemModel, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemModel{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return &OrderModel{
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
