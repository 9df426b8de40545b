// internal/service/product/domain/port/ports.go

// Package port 定义 product 服务依赖的出站端口，由 infrastructure 层实现。
package port

import (
	"context"

	"mercado/internal/saga"
	"mercado/internal/service/product/domain"
)

// StockSerializer 把同一批商品上的扣减/恢复串行化。
// 多个库存引擎实例借助它避免在同一商品行上互相挤兑乐观锁。
type StockSerializer interface {
	// LockProducts 按固定顺序获取所有给定商品的锁，返回释放函数。
	// 获取失败视为瞬时故障，调用方应走重试路径。
	LockProducts(ctx context.Context, productIDs []uint) (release func(), err error)
}

// EventPublisher 发布库存引擎产生的 Saga 事件。
type EventPublisher interface {
	PublishStockCommitFailed(ctx context.Context, evt saga.StockCommitFailed) error
}

// ProductCache 是商品快照的旁路缓存。只服务读路径，
// 权威数据永远在数据库里，缓存不可用时直接穿透。
type ProductCache interface {
	// MGet 返回命中的商品和未命中的 ID 列表。
	MGet(ctx context.Context, ids []uint) (hit map[uint]domain.Product, missing []uint)
	MSet(ctx context.Context, products []domain.Product)
	Invalidate(ctx context.Context, ids []uint)
}
