// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

func init() {
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 设置全局日志器的服务名和日志级别。
// 各服务的 main 在启动时调用一次。
func Init(serviceName string) {
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lv != zerolog.NoLevel {
		level = lv
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base = zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个带有当前追踪上下文的日志器。
// 如果 ctx 中存在有效的 Span，日志会自动带上 trace_id/span_id，
// 便于在 Jaeger 和日志系统之间互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := base
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &l
}
