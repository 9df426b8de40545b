// internal/pkg/mq/consumer.go
package mq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"mercado/internal/pkg/logger"
)

// HandlerFunc 处理一条已解出追踪上下文的消息。
// 返回错误时由 FailureHandler 决定重试还是进死信，消息本身总会被提交，
// 不依赖 Kafka 的重复投递来实现重试。
type HandlerFunc func(ctx context.Context, msg kafka.Message) error

// Consumer 是驱动适配器：监听一个主题并把消息交给业务处理函数。
// 各服务的 interfaces 层用它组装出具体的事件消费者。
type Consumer struct {
	reader  *kafka.Reader
	handle  HandlerFunc
	failure *FailureHandler

	wg      sync.WaitGroup
	stopped atomic.Bool
	delay   time.Duration
}

func NewConsumer(reader *kafka.Reader, handle HandlerFunc, failure *FailureHandler) *Consumer {
	return &Consumer{reader: reader, handle: handle, failure: failure}
}

// SetDelay 让消费者在消息产生时间之后延迟 d 再处理。
// 重试主题的消费者用它实现退避，避免立刻再次撞上同一个瞬时故障。
func (a *Consumer) SetDelay(d time.Duration) {
	a.delay = d
}

// Start 开始监听。长期运行，直到 ctx 取消或 Stop 被调用。
func (a *Consumer) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("kafka consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			// 用 FetchMessage 而不是 ReadMessage，提交时机由我们控制
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("kafka consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
				time.Sleep(1 * time.Second) // 避免快速失败循环
				continue
			}

			if a.delay > 0 {
				deliveryTime := msg.Time.Add(a.delay)
				if wait := time.Until(deliveryTime); wait > 0 {
					time.Sleep(wait)
				}
			}

			propagator := otel.GetTextMapPropagator()
			carrier := KafkaHeaderCarrier(msg.Headers)
			msgCtx := propagator.Extract(ctx, &carrier)

			if procErr := a.handle(msgCtx, msg); procErr != nil {
				a.failure.Handle(msgCtx, msg, procErr)
			}

			// 无论成功还是已移交失败处理，都提交 Offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。关闭 reader 会解除 FetchMessage 的阻塞。
func (a *Consumer) Stop(ctx context.Context) {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("kafka consumer stopped")
}
