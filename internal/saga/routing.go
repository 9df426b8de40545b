// internal/saga/routing.go
package saga

import "mercado/internal/pkg/config"

// Routing 把事件种类映射到可配置的主题路由名。
type Routing struct {
	topics map[EventKind]string
}

func NewRouting(t config.Topics) Routing {
	return Routing{topics: map[EventKind]string{
		KindCheckoutInitiated:    t.CheckoutInitiated,
		KindStockCommitRequested: t.StockCommitRequested,
		KindStockCommitFailed:    t.StockCommitFailed,
		KindOrderCancelled:       t.OrderCancelled,
	}}
}

// Topic 返回某事件种类的主题名。未配置的种类是部署错误，直接 panic。
func (r Routing) Topic(kind EventKind) string {
	topic, ok := r.topics[kind]
	if !ok || topic == "" {
		panic("saga: no topic configured for event kind " + string(kind))
	}
	return topic
}
