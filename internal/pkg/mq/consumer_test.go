// internal/pkg/mq/consumer_test.go
package mq

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
)

// Stop 与消费循环并发运行，停止标志的读写必须同步。
// 取消过的 context 让循环立即退出，无需真实 broker。
func TestConsumerStopIsSafeWhileRunning(t *testing.T) {
	reader := NewKafkaReader([]string{"localhost:0"}, "orders", "test-group")
	c := NewConsumer(reader, func(context.Context, kafka.Message) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Stop(context.Background())
}

func TestDltConsumerStopIsSafeWhileRunning(t *testing.T) {
	reader := NewKafkaReader([]string{"localhost:0"}, "orders.dlt", "test-group-dlt")
	c := NewDltConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Stop(context.Background())
}
