// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Client 是对 go-redis 的薄封装，统一地址解析和启动探活。
type Client struct {
	rdb redis.UniversalClient
}

// NewClient 根据逗号分隔的地址列表创建客户端，单地址走普通客户端，
// 多地址走集群客户端。启动时 Ping 一次，尽早暴露配置错误。
func NewClient(addrs string) (*Client, error) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: strings.Split(addrs, ","),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

// SetNX 带 TTL 的占位写入，返回是否首次写入。
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
