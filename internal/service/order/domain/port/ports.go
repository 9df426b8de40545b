// internal/service/order/domain/port/ports.go

// Package port 定义 order 服务依赖的出站端口。
package port

import (
	"context"

	"mercado/internal/saga"
)

// EventPublisher 发布订单侧产生的 Saga 事件。
type EventPublisher interface {
	PublishOrderCancelled(ctx context.Context, evt saga.OrderCancelled) error
}
