// internal/saga/idempotency/guard.go

// Package idempotency 把 at-least-once 投递收敛成 exactly-once 效果。
// 每个 Saga 事件消费者在变更状态前调用 ShouldProcess，在变更成功后
// 标记已处理；库存这类必须严格去重的变更直接在自己的数据库事务里
// 调用 Mark，让幂等标记和变更原子提交。
package idempotency

import (
	"context"

	"mercado/internal/saga"
)

// Guard 记录 (correlationId, eventKind) 是否已被处理。
type Guard interface {
	// ShouldProcess 报告该事件是否还未被处理。
	ShouldProcess(ctx context.Context, correlationID string, kind saga.EventKind) (bool, error)
	// MarkProcessed 在状态变更成功后记录事件。对于本身就幂等的变更
	//（如订单状态机），在变更之后单独调用即可；变更和标记之间宕机
	// 只会导致一次无害的重复 no-op。
	MarkProcessed(ctx context.Context, correlationID string, kind saga.EventKind) error
	// WasProcessed 查询事件是否已留下处理记录。恢复库存前用它确认
	// 对应的扣减事件已经被处理过（乱序投递时 restore 需要等待 commit）。
	WasProcessed(ctx context.Context, correlationID string, kind saga.EventKind) (bool, error)
}

// WithFastPath 在持久化 Guard 前面加一层 Redis 快速路径：
// 热点重投递不必每次都打到数据库。Redis 只是建议性的，
// 它不可用或给出"未见过"时一律落到持久层判断。
func WithFastPath(durable Guard, fast *FastPath) Guard {
	if fast == nil {
		return durable
	}
	return &fastPathGuard{durable: durable, fast: fast}
}

type fastPathGuard struct {
	durable Guard
	fast    *FastPath
}

func (g *fastPathGuard) ShouldProcess(ctx context.Context, correlationID string, kind saga.EventKind) (bool, error) {
	if g.fast.Seen(ctx, correlationID, kind) {
		// 快速路径命中仍需持久层确认，Redis 记录可能先于事务提交写入
		processed, err := g.durable.WasProcessed(ctx, correlationID, kind)
		if err == nil && processed {
			return false, nil
		}
	}
	return g.durable.ShouldProcess(ctx, correlationID, kind)
}

func (g *fastPathGuard) MarkProcessed(ctx context.Context, correlationID string, kind saga.EventKind) error {
	if err := g.durable.MarkProcessed(ctx, correlationID, kind); err != nil {
		return err
	}
	g.fast.Record(ctx, correlationID, kind)
	return nil
}

func (g *fastPathGuard) WasProcessed(ctx context.Context, correlationID string, kind saga.EventKind) (bool, error) {
	return g.durable.WasProcessed(ctx, correlationID, kind)
}
