// internal/service/product/infrastructure/redis_cache.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mercado/internal/pkg/logger"
	pkgredis "mercado/internal/pkg/redis"
	"mercado/internal/service/product/domain"
)

const snapshotTTL = 5 * time.Minute

// RedisProductCache 把商品快照缓存在 Redis 里，加速批量读路径。
// 任何 Redis 故障都降级为缓存未命中。
type RedisProductCache struct {
	client *pkgredis.Client
}

func NewRedisProductCache(client *pkgredis.Client) *RedisProductCache {
	return &RedisProductCache{client: client}
}

func snapshotKey(id uint) string {
	return fmt.Sprintf("product:snapshot:%d", id)
}

func (c *RedisProductCache) MGet(ctx context.Context, ids []uint) (map[uint]domain.Product, []uint) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = snapshotKey(id)
	}
	values, err := c.client.GetClient().MGet(ctx, keys...).Result()
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("product cache mget failed, falling through to db")
		return map[uint]domain.Product{}, ids
	}

	hit := make(map[uint]domain.Product)
	var missing []uint
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var p domain.Product
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		hit[ids[i]] = p
	}
	return hit, missing
}

func (c *RedisProductCache) MSet(ctx context.Context, products []domain.Product) {
	pipe := c.client.GetClient().Pipeline()
	for i := range products {
		data, err := json.Marshal(&products[i])
		if err != nil {
			continue
		}
		pipe.Set(ctx, snapshotKey(products[i].ID), data, snapshotTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("product cache mset failed")
	}
}

func (c *RedisProductCache) Invalidate(ctx context.Context, ids []uint) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = snapshotKey(id)
	}
	if err := c.client.GetClient().Del(ctx, keys...).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("product cache invalidate failed")
	}
}
