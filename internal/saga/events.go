// internal/saga/events.go

// Package saga 定义结算 Saga 的事件契约、错误分类和路由。
// cart、order、product 三个服务只通过这里的类型对话：
// 事件是三方之间唯一的异步协议。
package saga

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind 标识一种 Saga 事件。与 correlationId 组成幂等键。
type EventKind string

const (
	KindCheckoutInitiated    EventKind = "CheckoutInitiated"
	KindStockCommitRequested EventKind = "StockCommitRequested"
	KindStockCommitFailed    EventKind = "StockCommitFailed"
	KindOrderCancelled       EventKind = "OrderCancelled"
)

// NewCartCorrelationID 为一次结算铸造 Saga 实例的关联 ID。
// 购物车是用户的常驻容器，同一辆车会发起任意多次结算，所以 ID
// 除了车号还要带每次结算独有的随机段——只用车号会把所有结算
// 串成同一个实例，幂等守卫会把第二单当成重复直接吞掉。
// 同一实例的所有事件都携带同一个 ID，用于去重和全链路追踪。
func NewCartCorrelationID(cartID uint) string {
	return fmt.Sprintf("cart-%d-%s", cartID, uuid.NewString()[:8])
}

// LineItem 是事件里的商品行。只携带最小字段，控制消息体大小。
type LineItem struct {
	ProductID uint `json:"productId"`
	Quantity  int  `json:"quantity"`
}

// CheckoutInitiated 在结算发起时发布，order-service 的审计消费者记录它。
// 订单本身由 cart-service 同步创建，这个事件不会触发第二次建单。
type CheckoutInitiated struct {
	CorrelationID string     `json:"correlationId"`
	CartID        uint       `json:"cartId"`
	UserID        uint       `json:"userId"`
	PaymentMethod string     `json:"paymentMethod"`
	Items         []LineItem `json:"items"`
}

// StockCommitRequested 触发库存的权威扣减。
type StockCommitRequested struct {
	CorrelationID     string       `json:"correlationId"`
	UserID            uint         `json:"userId"`
	ProductQuantities map[uint]int `json:"productQuantities"`
}

// StockCommitFailed 是扣减失败的补偿起点，order-service 据此取消订单。
type StockCommitFailed struct {
	CorrelationID     string       `json:"correlationId"`
	UserID            uint         `json:"userId"`
	ProductQuantities map[uint]int `json:"productQuantities"`
	ErrorMessage      string       `json:"errorMessage"`
}

// OrderCancelled 在订单取消后发布，product-service 据此恢复库存。
type OrderCancelled struct {
	CorrelationID string     `json:"correlationId"`
	OrderID       uint       `json:"orderId"`
	UserID        uint       `json:"userId"`
	Items         []LineItem `json:"items"`
	CancelledAt   time.Time  `json:"cancelledAt"`
}
