// internal/service/product/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"mercado/internal/pkg/logger"
	"mercado/internal/saga"
	"mercado/internal/saga/idempotency"
	"mercado/internal/service/product/domain"
)

// GormProductRepository 是 ProductRepository 的 MySQL 实现。
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) (*GormProductRepository, error) {
	if err := db.AutoMigrate(&ProductModel{}, &idempotency.ProcessedEvent{}); err != nil {
		return nil, errors.Wrap(err, "auto migrate product tables")
	}
	return &GormProductRepository{db: db}, nil
}

func (r *GormProductRepository) Create(ctx context.Context, product *domain.Product) error {
	model := fromDomain(product)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "create product")
	}
	*product = *toDomain(model)
	return nil
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uint) (*domain.Product, error) {
	var model ProductModel
	err := r.db.WithContext(ctx).First(&model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &saga.NotFoundError{Resource: "product", ID: strconv.FormatUint(uint64(id), 10)}
	}
	if err != nil {
		return nil, errors.Wrap(err, "find product")
	}
	return toDomain(&model), nil
}

func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.Product, error) {
	var models []ProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "find products by ids")
	}
	products := make([]domain.Product, 0, len(models))
	for i := range models {
		products = append(products, *toDomain(&models[i]))
	}
	return products, nil
}

func (r *GormProductRepository) FindAll(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	var models []ProductModel
	err := r.db.WithContext(ctx).Order("id").Limit(limit).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	products := make([]domain.Product, 0, len(models))
	for i := range models {
		products = append(products, *toDomain(&models[i]))
	}
	return products, nil
}

// Save 带版本校验地保存商品，防止运营侧更新覆盖并发的库存变更。
func (r *GormProductRepository) Save(ctx context.Context, product *domain.Product) error {
	result := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND version = ?", product.ID, product.Version).
		Updates(map[string]interface{}{
			"name":        product.Name,
			"description": product.Description,
			"price":       product.Price,
			"stock":       product.Stock,
			"version":     gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "save product")
	}
	if result.RowsAffected == 0 {
		return &saga.TransientError{Op: "save product: version conflict"}
	}
	product.Version++
	return nil
}

func (r *GormProductRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&ProductModel{}, id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete product")
	}
	if result.RowsAffected == 0 {
		return &saga.NotFoundError{Resource: "product", ID: strconv.FormatUint(uint64(id), 10)}
	}
	return nil
}

// CommitDecrement 执行全量扣减事务。关键点：
//   - 幂等标记先写入，唯一键冲突直接判定为重复投递；
//   - 先整批校验，再逐行做带版本校验的条件 UPDATE，
//     任何一行没更新到说明有并发写，整个事务回滚重试；
//   - 业务失败（库存不足/商品缺失）时整个事务回滚，标记也不落库：
//     处理标记由调用方在补偿事件发布成功之后再写，否则发布失败时
//     重投递会被标记挡住，补偿链断裂。
func (r *GormProductRepository) CommitDecrement(ctx context.Context, correlationID string, quantities map[uint]int) ([]domain.Product, error) {
	ids := make([]uint, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var updated []domain.Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := idempotency.Mark(tx, correlationID, saga.KindStockCommitRequested); err != nil {
			return err
		}

		var models []ProductModel
		if err := tx.Where("id IN ?", ids).Find(&models).Error; err != nil {
			return errors.Wrap(err, "load products for decrement")
		}
		byID := make(map[uint]*ProductModel, len(models))
		for i := range models {
			byID[models[i].ID] = &models[i]
		}

		for _, id := range ids {
			model, ok := byID[id]
			if !ok {
				return &saga.NotFoundError{Resource: "product", ID: strconv.FormatUint(uint64(id), 10)}
			}
			if model.Stock < quantities[id] {
				return &saga.InsufficientStockError{
					ProductID: id,
					Required:  quantities[id],
					Available: model.Stock,
				}
			}
		}

		updated = make([]domain.Product, 0, len(ids))
		for _, id := range ids {
			model := byID[id]
			qty := quantities[id]
			result := tx.Model(&ProductModel{}).
				Where("id = ? AND version = ? AND stock >= ?", id, model.Version, qty).
				Updates(map[string]interface{}{
					"stock":   gorm.Expr("stock - ?", qty),
					"version": gorm.Expr("version + 1"),
				})
			if result.Error != nil {
				return errors.Wrapf(result.Error, "decrement stock of product %d", id)
			}
			if result.RowsAffected == 0 {
				// 校验后被并发修改，整个事务回滚（包括幂等标记），走重试
				return &saga.TransientError{
					Op: "decrement product " + strconv.FormatUint(uint64(id), 10) + ": version conflict",
				}
			}
			p := *toDomain(model)
			p.Stock -= qty
			p.Version++
			updated = append(updated, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RestoreIncrement 执行补偿回补事务，标记与加库存原子提交。
func (r *GormProductRepository) RestoreIncrement(ctx context.Context, correlationID string, items []saga.LineItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := idempotency.Mark(tx, correlationID, saga.KindOrderCancelled); err != nil {
			return err
		}
		for _, item := range items {
			result := tx.Model(&ProductModel{}).
				Where("id = ?", item.ProductID).
				Updates(map[string]interface{}{
					"stock":   gorm.Expr("stock + ?", item.Quantity),
					"version": gorm.Expr("version + 1"),
				})
			if result.Error != nil {
				return errors.Wrapf(result.Error, "restore stock of product %d", item.ProductID)
			}
			if result.RowsAffected == 0 {
				// 商品在取消前被删除，回补没有落点，记录后继续
				logger.Ctx(ctx).Warn().
					Uint("product_id", item.ProductID).
					Str("correlation_id", correlationID).
					Msg("product missing during stock restore, skipping")
			}
		}
		return nil
	})
}
