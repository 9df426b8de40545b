// internal/pkg/mq/dlt.go
package mq

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"mercado/internal/pkg/logger"
)

// DltConsumer 监听一个死信主题并结构化记录每条死信。
// 死信消息总是直接提交——记录日志就是对它的"处理"。
type DltConsumer struct {
	reader  *kafka.Reader
	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewDltConsumer(reader *kafka.Reader) *DltConsumer {
	return &DltConsumer{reader: reader}
}

func (a *DltConsumer) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("DLT consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			msg, err := a.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			logDeadLetter(ctx, msg)
		}
	}()
	return nil
}

func (a *DltConsumer) Stop(ctx context.Context) {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("DLT consumer stopped")
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", headers[HeaderOriginalTopic]).
		Str("original_partition", headers[HeaderOriginalPartition]).
		Str("original_offset", headers[HeaderOriginalOffset]).
		Str("exception_message", headers[HeaderExceptionMessage]).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("CRITICAL: dead letter message received")
}
