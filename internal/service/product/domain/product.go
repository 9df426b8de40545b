// internal/service/product/domain/product.go

// Package domain 定义商品聚合与库存不变量。
// Stock 永远不为负，Version 用于乐观锁：任何并发写都必须经过版本校验。
package domain

import (
	"time"
)

// Product 是商品聚合根，同时也是库存的权威记录。
type Product struct {
	ID          uint
	Name        string
	Description string
	Price       float64
	Stock       int
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasSufficientStock 报告当前库存能否满足所需数量。
func (p *Product) HasSufficientStock(required int) bool {
	return p.Stock >= required
}
