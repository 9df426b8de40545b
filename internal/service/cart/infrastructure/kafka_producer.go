// internal/service/cart/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"mercado/internal/pkg/mq"
	"mercado/internal/saga"
)

// KafkaEventPublisher 发布结算侧的两个 Saga 事件。
// 两个主题各有自己的 Writer；key 都是 correlationId。
type KafkaEventPublisher struct {
	checkoutWriter *kafka.Writer
	commitWriter   *kafka.Writer
}

func NewKafkaEventPublisher(checkoutWriter, commitWriter *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{checkoutWriter: checkoutWriter, commitWriter: commitWriter}
}

func (p *KafkaEventPublisher) PublishCheckoutInitiated(ctx context.Context, evt saga.CheckoutInitiated) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal CheckoutInitiated")
	}
	if err := mq.ProduceMessage(ctx, p.checkoutWriter, []byte(evt.CorrelationID), payload); err != nil {
		return errors.Wrap(err, "produce CheckoutInitiated")
	}
	saga.ObservePublished(saga.KindCheckoutInitiated)
	return nil
}

func (p *KafkaEventPublisher) PublishStockCommitRequested(ctx context.Context, evt saga.StockCommitRequested) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal StockCommitRequested")
	}
	if err := mq.ProduceMessage(ctx, p.commitWriter, []byte(evt.CorrelationID), payload); err != nil {
		return errors.Wrap(err, "produce StockCommitRequested")
	}
	saga.ObservePublished(saga.KindStockCommitRequested)
	return nil
}
