// internal/saga/idempotency/gorm.go
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"mercado/internal/saga"
)

// mysqlDuplicateEntry 是 MySQL 唯一键冲突的错误码 (ER_DUP_ENTRY)。
const mysqlDuplicateEntry = 1062

// ProcessedEvent 对应 processed_events 表，追加写入，永不更新。
// (correlation_id, event_kind) 上的唯一键就是幂等性的最终裁判。
type ProcessedEvent struct {
	ID            uint   `gorm:"primaryKey"`
	CorrelationID string `gorm:"size:64;uniqueIndex:uk_correlation_kind"`
	EventKind     string `gorm:"size:32;uniqueIndex:uk_correlation_kind"`
	ProcessedAt   time.Time
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}

// Mark 在给定事务里写入处理记录。和状态变更共用同一个 tx 时，
// 变更和标记要么一起提交要么一起回滚——宕机不会造成静默的二次应用。
// 唯一键冲突映射为 ErrDuplicateEvent。
func Mark(tx *gorm.DB, correlationID string, kind saga.EventKind) error {
	record := ProcessedEvent{
		CorrelationID: correlationID,
		EventKind:     string(kind),
		ProcessedAt:   time.Now(),
	}
	if err := tx.Create(&record).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return saga.ErrDuplicateEvent
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return saga.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

// GormStore 是 Guard 的持久化实现。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&ProcessedEvent{})
}

func (s *GormStore) ShouldProcess(ctx context.Context, correlationID string, kind saga.EventKind) (bool, error) {
	processed, err := s.WasProcessed(ctx, correlationID, kind)
	if err != nil {
		return false, &saga.TransientError{Op: "query processed_events", Err: err}
	}
	return !processed, nil
}

func (s *GormStore) MarkProcessed(ctx context.Context, correlationID string, kind saga.EventKind) error {
	return Mark(s.db.WithContext(ctx), correlationID, kind)
}

func (s *GormStore) WasProcessed(ctx context.Context, correlationID string, kind saga.EventKind) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ProcessedEvent{}).
		Where("correlation_id = ? AND event_kind = ?", correlationID, string(kind)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
