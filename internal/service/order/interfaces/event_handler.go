// internal/service/order/interfaces/event_handler.go
package interfaces

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"mercado/internal/pkg/mq"
	"mercado/internal/saga"
	"mercado/internal/service/order/application"
)

// NewStockCommitFailedConsumer 组装补偿消费者：库存拒绝后取消订单。
func NewStockCommitFailedConsumer(reader *kafka.Reader, svc *application.OrderService, failure *mq.FailureHandler) *mq.Consumer {
	return mq.NewConsumer(reader, func(ctx context.Context, msg kafka.Message) error {
		var evt saga.StockCommitFailed
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return errors.Wrap(err, "decode StockCommitFailed")
		}
		return svc.HandleStockCommitFailed(ctx, evt)
	}, failure)
}

// NewCheckoutInitiatedConsumer 组装结算审计消费者。
func NewCheckoutInitiatedConsumer(reader *kafka.Reader, svc *application.OrderService, failure *mq.FailureHandler) *mq.Consumer {
	return mq.NewConsumer(reader, func(ctx context.Context, msg kafka.Message) error {
		var evt saga.CheckoutInitiated
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return errors.Wrap(err, "decode CheckoutInitiated")
		}
		return svc.HandleCheckoutInitiated(ctx, evt)
	}, failure)
}
