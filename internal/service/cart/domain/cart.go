// internal/service/cart/domain/cart.go

// Package domain 定义购物车聚合。购物车按用户唯一，条目按商品合并。
package domain

import (
	"time"

	"github.com/pkg/errors"
)

type CartItem struct {
	ID        uint
	CartID    uint
	ProductID uint
	Quantity  int
}

// Cart 是购物车聚合根。CheckoutToken 保存进行中的结算的 Saga
// 实例 ID：发布失败后的重试必须复用同一个实例才能拿回同一单，
// 结算成功后随条目一起清空。
type Cart struct {
	ID            uint
	UserID        uint
	CheckoutToken string
	Items         []CartItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// AddItem 加入商品，已存在时累加数量。
func (c *Cart) AddItem(productID uint, quantity int) error {
	if quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			return nil
		}
	}
	c.Items = append(c.Items, CartItem{CartID: c.ID, ProductID: productID, Quantity: quantity})
	return nil
}

// SetItemQuantity 覆盖某商品的数量，数量归零等价于移除。
func (c *Cart) SetItemQuantity(productID uint, quantity int) error {
	if quantity < 0 {
		return errors.New("quantity must not be negative")
	}
	if quantity == 0 {
		c.RemoveItem(productID)
		return nil
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	c.Items = append(c.Items, CartItem{CartID: c.ID, ProductID: productID, Quantity: quantity})
	return nil
}

func (c *Cart) RemoveItem(productID uint) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

func (c *Cart) Clear() {
	c.Items = nil
	c.CheckoutToken = ""
}

// QuantityMap 把条目投影成 商品ID→数量 表，事件和预检都用这个形状。
func (c *Cart) QuantityMap() map[uint]int {
	m := make(map[uint]int, len(c.Items))
	for _, item := range c.Items {
		m[item.ProductID] = item.Quantity
	}
	return m
}
