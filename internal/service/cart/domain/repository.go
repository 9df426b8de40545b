// internal/service/cart/domain/repository.go
package domain

import "context"

// CartRepository 是购物车聚合的持久化端口。
type CartRepository interface {
	// FindOrCreateByUserID 返回用户的购物车，不存在时创建空车。
	FindOrCreateByUserID(ctx context.Context, userID uint) (*Cart, error)
	// Save 全量保存购物车条目（含删除）。
	Save(ctx context.Context, cart *Cart) error
}
