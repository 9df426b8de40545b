// internal/service/order/application/service.go

// Package application 编排订单用例。订单在结算时由 cart 服务同步创建，
// 之后的一切状态变化都由 Saga 事件或运营操作驱动。
package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercado/internal/pkg/logger"
	"mercado/internal/saga"
	"mercado/internal/saga/idempotency"
	"mercado/internal/service/order/domain"
	"mercado/internal/service/order/domain/port"
)

// CancelledByStockFailure 标记由库存失败补偿触发的取消。
const CancelledByStockFailure = "stock commit failed"

// CreateOrderRequest 是服务间建单请求。
type CreateOrderRequest struct {
	UserID        uint                `json:"userId"`
	CorrelationID string              `json:"correlationId"`
	PaymentMethod string              `json:"paymentMethod"`
	Items         []CreateOrderItem   `json:"items"`
}

type CreateOrderItem struct {
	ProductID   uint    `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// OrderService 聚合订单用例与补偿处理。
type OrderService struct {
	repo   domain.OrderRepository
	guard  idempotency.Guard
	events port.EventPublisher
	tracer trace.Tracer
}

func NewOrderService(repo domain.OrderRepository, guard idempotency.Guard, events port.EventPublisher, tracer trace.Tracer) *OrderService {
	return &OrderService{repo: repo, guard: guard, events: events, tracer: tracer}
}

// CreateOrder 创建 PENDING 订单。correlationId 上的唯一键保证
// 同一次结算的重试拿回的是同一单。
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder",
		trace.WithAttributes(attribute.String("saga.correlation_id", req.CorrelationID)))
	defer span.End()

	if req.CorrelationID == "" {
		return nil, errors.New("correlationId is required")
	}
	if req.UserID == 0 {
		return nil, errors.New("userId is required")
	}
	if len(req.Items) == 0 {
		return nil, errors.New("order must contain at least one item")
	}
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, errors.Errorf("non-positive quantity for product %d", item.ProductID)
		}
		items = append(items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	order, err := s.repo.Create(ctx, domain.NewOrder(req.UserID, req.CorrelationID, req.PaymentMethod, items))
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Uint("order_id", order.ID).
		Str("correlation_id", order.CorrelationID).
		Float64("total", order.TotalAmount).
		Msg("order created")
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uint) (*domain.Order, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context, userID uint, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.FindByUserID(ctx, userID, limit, offset)
}

// CancelOrder 是运营/用户侧的取消入口。
func (s *OrderService) CancelOrder(ctx context.Context, id uint, reason string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder")
	defer span.End()

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cancelAndPublish(ctx, order, reason); err != nil {
		return nil, err
	}
	return order, nil
}

// cancelAndPublish 执行取消迁移并发布 OrderCancelled。
// 已取消的订单也会重新发布事件：发布失败后的重试依赖这一点，
// 下游的幂等守卫会吞掉重复。
func (s *OrderService) cancelAndPublish(ctx context.Context, order *domain.Order, reason string) error {
	wasPending := order.Status == domain.StatusPending
	if err := order.Cancel(reason); err != nil {
		return err
	}
	if wasPending {
		moved, err := s.repo.UpdateStatus(ctx, order.ID, domain.StatusPending, domain.StatusCancelled, reason)
		if err != nil {
			return err
		}
		if !moved {
			// 状态被并发修改，重新加载裁决
			fresh, err := s.repo.FindByID(ctx, order.ID)
			if err != nil {
				return err
			}
			if fresh.Status == domain.StatusConfirmed {
				return &saga.InvalidTransitionError{From: string(domain.StatusConfirmed), To: string(domain.StatusCancelled)}
			}
			*order = *fresh
		}
	}

	evt := saga.OrderCancelled{
		CorrelationID: order.CorrelationID,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Items:         order.LineItems(),
		CancelledAt:   time.Now().UTC(),
	}
	if err := s.events.PublishOrderCancelled(ctx, evt); err != nil {
		// 取消已落库但事件没发出去：让调用方/重试把事件补发出去，
		// 否则库存永远不会恢复
		return &saga.TransientError{Op: "publish OrderCancelled", Err: err}
	}
	logger.Ctx(ctx).Info().
		Uint("order_id", order.ID).
		Str("correlation_id", order.CorrelationID).
		Str("reason", reason).
		Msg("order cancelled")
	return nil
}

// ConfirmOrder 把支付完成的订单转入 CONFIRMED。
func (s *OrderService) ConfirmOrder(ctx context.Context, id uint) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ConfirmOrder")
	defer span.End()

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.StatusConfirmed {
		return order, nil
	}
	if err := order.Confirm(); err != nil {
		return nil, err
	}
	moved, err := s.repo.UpdateStatus(ctx, order.ID, domain.StatusPending, domain.StatusConfirmed, "")
	if err != nil {
		return nil, err
	}
	if !moved {
		fresh, err := s.repo.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if fresh.Status != domain.StatusConfirmed {
			return nil, &saga.InvalidTransitionError{From: string(fresh.Status), To: string(domain.StatusConfirmed)}
		}
		order = fresh
	}
	return order, nil
}

// HandleStockCommitFailed 是补偿链的第一跳：库存拒绝扣减，取消对应订单。
func (s *OrderService) HandleStockCommitFailed(ctx context.Context, evt saga.StockCommitFailed) error {
	ctx, span := s.tracer.Start(ctx, "order.HandleStockCommitFailed",
		trace.WithAttributes(attribute.String("saga.correlation_id", evt.CorrelationID)))
	defer span.End()
	log := logger.Ctx(ctx).With().Str("correlation_id", evt.CorrelationID).Logger()

	if evt.CorrelationID == "" {
		return errors.New("StockCommitFailed without correlationId")
	}

	ok, err := s.guard.ShouldProcess(ctx, evt.CorrelationID, saga.KindStockCommitFailed)
	if err != nil {
		return err
	}
	if !ok {
		log.Info().Msg("duplicate StockCommitFailed, acknowledging without effect")
		saga.ObserveProcessed(saga.KindStockCommitFailed, saga.ResultDuplicate)
		return nil
	}

	order, err := s.repo.FindByCorrelationID(ctx, evt.CorrelationID)
	if err != nil {
		if saga.IsNotFound(err) {
			// 订单在事件发布之前就已创建；查不到多半是复制延迟，停靠重试
			return &saga.TransientError{Op: "order not yet visible for compensation", Err: err}
		}
		return err
	}

	reason := CancelledByStockFailure
	if evt.ErrorMessage != "" {
		reason = reason + ": " + evt.ErrorMessage
	}
	if err := s.cancelAndPublish(ctx, order, reason); err != nil {
		// 已确认的订单收到库存失败是数据矛盾，InvalidTransition 不可重试，
		// 会被直接送进死信等待人工处理
		return err
	}

	// 标记在取消和事件发布之后：中途宕机会导致重做，
	// 但取消是幂等的、下游发布有守卫，重做无害。
	if err := s.guard.MarkProcessed(ctx, evt.CorrelationID, saga.KindStockCommitFailed); err != nil && !saga.IsDuplicate(err) {
		return &saga.TransientError{Op: "mark StockCommitFailed processed", Err: err}
	}
	saga.ObserveProcessed(saga.KindStockCommitFailed, saga.ResultOK)
	return nil
}

// HandleCheckoutInitiated 是审计消费者：订单由结算方同步创建，
// 这里只把结算发起这件事落进审计表。
func (s *OrderService) HandleCheckoutInitiated(ctx context.Context, evt saga.CheckoutInitiated) error {
	ctx, span := s.tracer.Start(ctx, "order.HandleCheckoutInitiated",
		trace.WithAttributes(attribute.String("saga.correlation_id", evt.CorrelationID)))
	defer span.End()

	if evt.CorrelationID == "" {
		return errors.New("CheckoutInitiated without correlationId")
	}
	ok, err := s.guard.ShouldProcess(ctx, evt.CorrelationID, saga.KindCheckoutInitiated)
	if err != nil {
		return err
	}
	if !ok {
		saga.ObserveProcessed(saga.KindCheckoutInitiated, saga.ResultDuplicate)
		return nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal checkout audit payload")
	}
	if err := s.repo.RecordCheckoutAudit(ctx, evt.CorrelationID, evt.CartID, evt.UserID, payload); err != nil {
		return err
	}
	if err := s.guard.MarkProcessed(ctx, evt.CorrelationID, saga.KindCheckoutInitiated); err != nil && !saga.IsDuplicate(err) {
		return &saga.TransientError{Op: "mark CheckoutInitiated processed", Err: err}
	}
	saga.ObserveProcessed(saga.KindCheckoutInitiated, saga.ResultOK)
	return nil
}
