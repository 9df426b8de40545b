// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 是订单聚合的持久化端口。
type OrderRepository interface {
	// Create 持久化新订单及其条目。correlation_id 上有唯一键，
	// 同一次结算重复建单会返回已存在的那一单而不是第二单。
	Create(ctx context.Context, order *Order) (*Order, error)
	FindByID(ctx context.Context, id uint) (*Order, error)
	FindByCorrelationID(ctx context.Context, correlationID string) (*Order, error)
	FindByUserID(ctx context.Context, userID uint, limit, offset int) ([]Order, error)

	// UpdateStatus 条件更新状态：只有当前状态仍是 from 时才生效。
	// 返回是否真的发生了迁移；false 表示状态已被并发修改，调用方重新加载判断。
	UpdateStatus(ctx context.Context, id uint, from, to OrderStatus, reason string) (bool, error)

	// RecordCheckoutAudit 落一条结算发起的审计记录，按 correlationID 去重。
	RecordCheckoutAudit(ctx context.Context, correlationID string, cartID, userID uint, payload []byte) error
}
