// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"mercado/internal/pkg/logger"
)

// 失败路由使用的消息头，死信分析时用来还原现场。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionMessage  = "x-exception-message"
	HeaderRetryAttempt      = "x-retry-attempt"
)

var (
	retriedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mq_messages_retried_total",
		Help: "Messages republished to a retry topic.",
	}, []string{"topic"})
	deadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mq_messages_dead_lettered_total",
		Help: "Messages routed to a dead letter topic.",
	}, []string{"topic"})
)

// retryable 由错误类型自行声明。无法分类的错误一律按不可重试处理，
// 宁可人工重放，也不能让一条坏消息在重试主题里无限放大。
type retryable interface {
	Retryable() bool
}

// IsRetryable 判断一次处理失败是否值得重试。
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// FailureHandler 实现消息处理失败后的两级路由：
// 可重试的错误进 <topic>.retry，带上尝试计数；超过上限或不可重试的
// 错误进 <topic>.dlt，不再投递，等待人工处理。
type FailureHandler struct {
	retryWriter *kafka.Writer
	dltWriter   *kafka.Writer
	maxAttempts int
}

func NewFailureHandler(brokers []string, topic string, maxAttempts int) *FailureHandler {
	return &FailureHandler{
		retryWriter: NewKafkaWriter(brokers, RetryTopic(topic)),
		dltWriter:   NewKafkaWriter(brokers, DeadLetterTopic(topic)),
		maxAttempts: maxAttempts,
	}
}

func RetryTopic(topic string) string      { return topic + ".retry" }
func DeadLetterTopic(topic string) string { return topic + ".dlt" }

// Handle 根据错误分类转发失败消息。转发自身失败只记日志：
// 消息已提交，剩下的恢复手段是离线重放。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, procErr error) {
	attempt := retryAttempt(msg.Headers)

	if IsRetryable(procErr) && attempt < h.maxAttempts {
		out := forwardedMessage(msg, procErr, attempt+1)
		if err := h.retryWriter.WriteMessages(ctx, out); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("topic", msg.Topic).
				Msg("CRITICAL: failed to republish message to retry topic")
			return
		}
		retriedMessages.WithLabelValues(msg.Topic).Inc()
		logger.Ctx(ctx).Warn().Err(procErr).
			Str("topic", msg.Topic).
			Int("attempt", attempt+1).
			Msg("message scheduled for retry")
		return
	}

	out := forwardedMessage(msg, procErr, attempt)
	if err := h.dltWriter.WriteMessages(ctx, out); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Msg("CRITICAL: failed to route message to dead letter topic")
		return
	}
	deadLetters.WithLabelValues(msg.Topic).Inc()
	logger.Ctx(ctx).Error().Err(procErr).
		Str("topic", msg.Topic).
		Int("attempt", attempt).
		Msg("message dead lettered")
}

func (h *FailureHandler) Close() {
	h.retryWriter.Close()
	h.dltWriter.Close()
}

func retryAttempt(headers []kafka.Header) int {
	for _, hd := range headers {
		if hd.Key == HeaderRetryAttempt {
			if n, err := strconv.Atoi(string(hd.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

// forwardedMessage 复制原消息并补全失败路由头。
func forwardedMessage(msg kafka.Message, procErr error, attempt int) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	for _, hd := range msg.Headers {
		switch hd.Key {
		case HeaderOriginalTopic, HeaderOriginalPartition, HeaderOriginalOffset,
			HeaderExceptionMessage, HeaderRetryAttempt:
			// 重新生成
		default:
			headers = append(headers, hd)
		}
	}
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderExceptionMessage, Value: []byte(procErr.Error())},
		kafka.Header{Key: HeaderRetryAttempt, Value: []byte(strconv.Itoa(attempt))},
	)

	return kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}
