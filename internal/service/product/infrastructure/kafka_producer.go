// internal/service/product/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"mercado/internal/pkg/mq"
	"mercado/internal/saga"
)

// KafkaEventPublisher 发布库存引擎产生的 Saga 事件。
// 消息 key 使用 correlationId，同一 Saga 实例的事件落在同一分区内保序。
type KafkaEventPublisher struct {
	commitFailedWriter *kafka.Writer
}

func NewKafkaEventPublisher(commitFailedWriter *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{commitFailedWriter: commitFailedWriter}
}

func (p *KafkaEventPublisher) PublishStockCommitFailed(ctx context.Context, evt saga.StockCommitFailed) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal StockCommitFailed")
	}
	if err := mq.ProduceMessage(ctx, p.commitFailedWriter, []byte(evt.CorrelationID), payload); err != nil {
		return errors.Wrap(err, "produce StockCommitFailed")
	}
	saga.ObservePublished(saga.KindStockCommitFailed)
	return nil
}
