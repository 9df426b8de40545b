// internal/service/cart/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"mercado/internal/service/cart/domain"
)

// CartModel 是 carts 表的 GORM 模型。
// CheckoutToken 记录进行中的结算的 Saga 实例 ID，结算成功后清空。
type CartModel struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        uint   `gorm:"uniqueIndex;not null"`
	CheckoutToken string `gorm:"size:64"`
	Items         []CartItemModel `gorm:"foreignKey:CartID"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (CartModel) TableName() string {
	return "carts"
}

type CartItemModel struct {
	ID        uint `gorm:"primaryKey"`
	CartID    uint `gorm:"uniqueIndex:uk_cart_product;not null"`
	ProductID uint `gorm:"uniqueIndex:uk_cart_product;not null"`
	Quantity  int  `gorm:"not null"`
}

func (CartItemModel) TableName() string {
	return "cart_items"
}

func toDomainCart(m *CartModel) *domain.Cart {
	items := make([]domain.CartItem, 0, len(m.Items))
	for _, item := range m.Items {
		items = append(items, domain.CartItem{
			ID:        item.ID,
			CartID:    item.CartID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return &domain.Cart{
		ID:            m.ID,
		UserID:        m.UserID,
		CheckoutToken: m.CheckoutToken,
		Items:         items,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// GormCartRepository 是 CartRepository 的 MySQL 实现。
type GormCartRepository struct {
	db *gorm.DB
}

func NewGormCartRepository(db *gorm.DB) (*GormCartRepository, error) {
	if err := db.AutoMigrate(&CartModel{}, &CartItemModel{}); err != nil {
		return nil, errors.Wrap(err, "auto migrate cart tables")
	}
	return &GormCartRepository{db: db}, nil
}

func (r *GormCartRepository) FindOrCreateByUserID(ctx context.Context, userID uint) (*domain.Cart, error) {
	var model CartModel
	err := r.db.WithContext(ctx).Preload("Items").
		Where(CartModel{UserID: userID}).
		FirstOrCreate(&model).Error
	if err != nil {
		return nil, errors.Wrap(err, "find or create cart")
	}
	return toDomainCart(&model), nil
}

// Save 全量替换条目：先删后插，和购物车行更新同在一个事务里。
func (r *GormCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_id = ?", cart.ID).Delete(&CartItemModel{}).Error; err != nil {
			return errors.Wrap(err, "clear cart items")
		}
		if len(cart.Items) > 0 {
			items := make([]CartItemModel, 0, len(cart.Items))
			for _, item := range cart.Items {
				items = append(items, CartItemModel{
					CartID:    cart.ID,
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
				})
			}
			if err := tx.Create(&items).Error; err != nil {
				return errors.Wrap(err, "save cart items")
			}
		}
		return errors.Wrap(
			tx.Model(&CartModel{}).Where("id = ?", cart.ID).
				Updates(map[string]interface{}{
					"checkout_token": cart.CheckoutToken,
					"updated_at":     time.Now(),
				}).Error,
			"save cart",
		)
	})
}
