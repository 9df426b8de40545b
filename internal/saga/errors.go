// internal/saga/errors.go
package saga

import (
	"errors"
	"fmt"
)

// ErrDuplicateEvent 表示事件已被处理过。消费者捕获后静默确认，
// 它不是故障，是 at-least-once 投递的正常现象。
var ErrDuplicateEvent = errors.New("duplicate saga event")

// InsufficientStockError 是业务拒绝：同步预检时直接返回给调用方，
// 异步提交时触发补偿链。不可重试——重试不会让库存变多。
type InsufficientStockError struct {
	ProductID uint
	Required  int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: required %d, available %d",
		e.ProductID, e.Required, e.Available)
}

func (e *InsufficientStockError) Retryable() bool { return false }

// NotFoundError 表示被引用的购物车/订单/商品不存在。
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Retryable() bool { return false }

// InvalidTransitionError 表示非法的订单状态变更。对请求是致命的，不重试。
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Retryable() bool { return false }

// TransientError 表示存储或事件总线的瞬时不可用，由传输层带退避重试。
// Saga 逻辑不吞掉它，只负责如实分类。
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transient failure: %s", e.Op)
	}
	return fmt.Sprintf("transient failure: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Retryable() bool { return true }

func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateEvent)
}
