// internal/saga/metrics.go
package saga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 处理结果标签值。
const (
	ResultOK              = "ok"
	ResultDuplicate       = "duplicate"
	ResultBusinessFailure = "business_failure"
	ResultError           = "error"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_events_published_total",
		Help: "Saga events published to the event bus, by kind.",
	}, []string{"kind"})

	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_events_processed_total",
		Help: "Saga events consumed, by kind and outcome.",
	}, []string{"kind", "result"})
)

func ObservePublished(kind EventKind) {
	eventsPublished.WithLabelValues(string(kind)).Inc()
}

func ObserveProcessed(kind EventKind, result string) {
	eventsProcessed.WithLabelValues(string(kind), result).Inc()
}
