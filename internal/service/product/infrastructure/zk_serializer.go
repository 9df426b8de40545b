// internal/service/product/infrastructure/zk_serializer.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"mercado/internal/pkg/logger"
	"mercado/internal/pkg/zookeeper"
)

// ZkStockSerializer 用 ZooKeeper 分布式锁串行化同一商品上的库存变更。
// 调用方必须传入升序的商品 ID，所有实例按同一顺序取锁，不会死锁。
type ZkStockSerializer struct {
	conn    *zookeeper.Conn
	timeout time.Duration
}

func NewZkStockSerializer(conn *zookeeper.Conn, timeout time.Duration) *ZkStockSerializer {
	return &ZkStockSerializer{conn: conn, timeout: timeout}
}

func (s *ZkStockSerializer) LockProducts(ctx context.Context, productIDs []uint) (func(), error) {
	locks := make([]*zookeeper.DistributedLock, 0, len(productIDs))
	release := func() {
		// 逆序释放
		for i := len(locks) - 1; i >= 0; i-- {
			if err := locks[i].Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("failed to release stock lock")
			}
		}
	}

	for _, id := range productIDs {
		lock, err := zookeeper.NewDistributedLock(s.conn, fmt.Sprintf("product-%d", id), s.timeout)
		if err != nil {
			release()
			return nil, err
		}
		if err := lock.Lock(); err != nil {
			release()
			return nil, err
		}
		locks = append(locks, lock)
	}
	return release, nil
}
