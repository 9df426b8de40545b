// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"mercado/internal/saga"
	"mercado/internal/saga/idempotency"
	"mercado/internal/service/order/domain"
)

const mysqlDuplicateEntry = 1062

// GormOrderRepository 是 OrderRepository 的 MySQL 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) (*GormOrderRepository, error) {
	err := db.AutoMigrate(&OrderModel{}, &OrderItemModel{}, &CheckoutAuditModel{}, &idempotency.ProcessedEvent{})
	if err != nil {
		return nil, errors.Wrap(err, "auto migrate order tables")
	}
	return &GormOrderRepository{db: db}, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	model := fromDomainOrder(order)
	err := r.db.WithContext(ctx).Create(model).Error
	if err != nil {
		if isDuplicateKey(err) {
			// 同一次结算重复建单：返回已存在的那一单
			return r.FindByCorrelationID(ctx, order.CorrelationID)
		}
		return nil, errors.Wrap(err, "create order")
	}
	return toDomainOrder(model), nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uint) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").First(&model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &saga.NotFoundError{Resource: "order", ID: strconv.FormatUint(uint64(id), 10)}
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").
		Where("correlation_id = ?", correlationID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &saga.NotFoundError{Resource: "order", ID: correlationID}
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order by correlation id")
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindByUserID(ctx context.Context, userID uint, limit, offset int) ([]domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("id DESC").Limit(limit).Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders := make([]domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, *toDomainOrder(&models[i]))
	}
	return orders, nil
}

func (r *GormOrderRepository) UpdateStatus(ctx context.Context, id uint, from, to domain.OrderStatus, reason string) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	if reason != "" {
		updates["cancel_reason"] = reason
	}
	result := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "update order status")
	}
	return result.RowsAffected > 0, nil
}

func (r *GormOrderRepository) RecordCheckoutAudit(ctx context.Context, correlationID string, cartID, userID uint, payload []byte) error {
	record := CheckoutAuditModel{
		CorrelationID: correlationID,
		CartID:        cartID,
		UserID:        userID,
		Payload:       payload,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isDuplicateKey(err) {
			return nil // 重复投递，审计已存在
		}
		return errors.Wrap(err, "record checkout audit")
	}
	return nil
}
