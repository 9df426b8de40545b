// internal/service/order/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"mercado/internal/pkg/mq"
	"mercado/internal/saga"
)

// KafkaEventPublisher 发布订单侧的 Saga 事件，key 用 correlationId 保序。
type KafkaEventPublisher struct {
	orderCancelledWriter *kafka.Writer
}

func NewKafkaEventPublisher(orderCancelledWriter *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{orderCancelledWriter: orderCancelledWriter}
}

func (p *KafkaEventPublisher) PublishOrderCancelled(ctx context.Context, evt saga.OrderCancelled) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal OrderCancelled")
	}
	if err := mq.ProduceMessage(ctx, p.orderCancelledWriter, []byte(evt.CorrelationID), payload); err != nil {
		return errors.Wrap(err, "produce OrderCancelled")
	}
	saga.ObservePublished(saga.KindOrderCancelled)
	return nil
}
