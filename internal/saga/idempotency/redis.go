// internal/saga/idempotency/redis.go
package idempotency

import (
	"context"
	"fmt"
	"time"

	"mercado/internal/pkg/logger"
	pkgredis "mercado/internal/pkg/redis"
	"mercado/internal/saga"
)

// FastPath 用 Redis SETNX 做重投递的快速判定。仅作加速，
// 任何 Redis 故障都按"未见过"处理，正确性完全由持久层保证。
type FastPath struct {
	client *pkgredis.Client
	ttl    time.Duration
}

func NewFastPath(client *pkgredis.Client, ttl time.Duration) *FastPath {
	return &FastPath{client: client, ttl: ttl}
}

func key(correlationID string, kind saga.EventKind) string {
	return fmt.Sprintf("saga:processed:{%s}:%s", correlationID, kind)
}

// Seen 报告该事件是否已经出现过。
func (f *FastPath) Seen(ctx context.Context, correlationID string, kind saga.EventKind) bool {
	n, err := f.client.GetClient().Exists(ctx, key(correlationID, kind)).Result()
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("idempotency fast path unavailable, falling back to store")
		return false
	}
	return n > 0
}

// Record 在持久层标记成功后写入快速路径记录。写失败只记日志。
func (f *FastPath) Record(ctx context.Context, correlationID string, kind saga.EventKind) {
	if _, err := f.client.SetNX(ctx, key(correlationID, kind), 1, f.ttl); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to record idempotency fast path key")
	}
}
