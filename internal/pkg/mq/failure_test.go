// internal/pkg/mq/failure_test.go
package mq

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"mercado/internal/saga"
)

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", &saga.TransientError{Op: "db down"}, true},
		{"wrapped transient", errors.Wrap(&saga.TransientError{Op: "db down"}, "handle event"), true},
		{"insufficient stock", &saga.InsufficientStockError{ProductID: 1}, false},
		{"not found", &saga.NotFoundError{Resource: "order", ID: "1"}, false},
		{"invalid transition", &saga.InvalidTransitionError{From: "CONFIRMED", To: "CANCELLED"}, false},
		{"unclassified", errors.New("mystery"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestForwardedMessageCarriesFailureHeaders(t *testing.T) {
	msg := kafka.Message{
		Topic:     "product.stock-commit-requested",
		Partition: 3,
		Offset:    42,
		Key:       []byte("cart-7"),
		Value:     []byte("{}"),
		Headers: []kafka.Header{
			{Key: "traceparent", Value: []byte("00-abc-def-01")},
			{Key: HeaderRetryAttempt, Value: []byte("1")}, // 会被重新生成
		},
	}
	out := forwardedMessage(msg, errors.New("boom"), 2)

	headers := map[string]string{}
	for _, h := range out.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers[HeaderOriginalTopic] != "product.stock-commit-requested" {
		t.Errorf("original topic = %q", headers[HeaderOriginalTopic])
	}
	if headers[HeaderOriginalPartition] != "3" || headers[HeaderOriginalOffset] != "42" {
		t.Errorf("origin coordinates = %q/%q", headers[HeaderOriginalPartition], headers[HeaderOriginalOffset])
	}
	if headers[HeaderExceptionMessage] != "boom" {
		t.Errorf("exception message = %q", headers[HeaderExceptionMessage])
	}
	if headers[HeaderRetryAttempt] != "2" {
		t.Errorf("retry attempt = %q, want 2", headers[HeaderRetryAttempt])
	}
	// 追踪头保留，消息本体不变
	if headers["traceparent"] == "" {
		t.Error("trace context header must survive forwarding")
	}
	if string(out.Key) != "cart-7" || string(out.Value) != "{}" {
		t.Error("key and value must be preserved")
	}
}

func TestRetryAttemptDefaultsToZero(t *testing.T) {
	if got := retryAttempt(nil); got != 0 {
		t.Errorf("attempt = %d, want 0", got)
	}
	if got := retryAttempt([]kafka.Header{{Key: HeaderRetryAttempt, Value: []byte("7")}}); got != 7 {
		t.Errorf("attempt = %d, want 7", got)
	}
}

func TestKafkaHeaderCarrierRoundTrip(t *testing.T) {
	carrier := KafkaHeaderCarrier{}
	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("traceparent", "00-abc-def-02") // 覆盖而不是追加
	if len(carrier) != 1 || carrier.Get("traceparent") != "00-abc-def-02" {
		t.Errorf("carrier = %+v", carrier)
	}
	if carrier.Get("missing") != "" {
		t.Error("missing key must return empty string")
	}
}
