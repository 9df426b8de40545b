// internal/service/product/domain/repository.go
package domain

import (
	"context"

	"mercado/internal/saga"
)

// ProductRepository 是商品聚合的持久化端口。
type ProductRepository interface {
	Create(ctx context.Context, product *Product) error
	FindByID(ctx context.Context, id uint) (*Product, error)
	FindByIDs(ctx context.Context, ids []uint) ([]Product, error)
	FindAll(ctx context.Context, limit, offset int) ([]Product, error)
	Save(ctx context.Context, product *Product) error
	Delete(ctx context.Context, id uint) error

	// CommitDecrement 在单个数据库事务里完成一次 Saga 扣减：
	// 全部商品校验通过才扣，任何一个不足则一行都不动（all-or-nothing）。
	// 幂等标记与扣减在同一事务提交；库存不足这类业务失败同样会留下
	// 处理记录（补偿依赖它判断扣减事件已被消费），但不改动任何库存行。
	// 重复的 correlationID 返回 saga.ErrDuplicateEvent。
	CommitDecrement(ctx context.Context, correlationID string, quantities map[uint]int) ([]Product, error)

	// RestoreIncrement 在单个数据库事务里恢复库存并记录处理标记。
	// 恢复是无上限的加法：取消的订单把扣走的数量原样还回去。
	RestoreIncrement(ctx context.Context, correlationID string, items []saga.LineItem) error
}
