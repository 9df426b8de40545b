// internal/service/product/interfaces/event_handler.go
package interfaces

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"mercado/internal/pkg/mq"
	"mercado/internal/saga"
	"mercado/internal/service/product/application"
)

// NewStockCommitConsumer 组装 StockCommitRequested 的消费者。
// 解码失败是确定性错误，交给 FailureHandler 直接送入死信主题。
func NewStockCommitConsumer(reader *kafka.Reader, svc *application.ProductService, failure *mq.FailureHandler) *mq.Consumer {
	return mq.NewConsumer(reader, func(ctx context.Context, msg kafka.Message) error {
		var evt saga.StockCommitRequested
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return errors.Wrap(err, "decode StockCommitRequested")
		}
		return svc.HandleStockCommitRequested(ctx, evt)
	}, failure)
}

// NewOrderCancelledConsumer 组装 OrderCancelled 的消费者（库存恢复）。
func NewOrderCancelledConsumer(reader *kafka.Reader, svc *application.ProductService, failure *mq.FailureHandler) *mq.Consumer {
	return mq.NewConsumer(reader, func(ctx context.Context, msg kafka.Message) error {
		var evt saga.OrderCancelled
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return errors.Wrap(err, "decode OrderCancelled")
		}
		return svc.HandleOrderCancelled(ctx, evt)
	}, failure)
}
