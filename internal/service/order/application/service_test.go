// internal/service/order/application/service_test.go
package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"

	"mercado/internal/saga"
	"mercado/internal/saga/idempotency"
	"mercado/internal/service/order/domain"
)

type memOrderRepo struct {
	mu     sync.Mutex
	nextID uint
	orders map[uint]*domain.Order
	byCorr map[string]uint
	audits map[string][]byte
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		nextID: 1,
		orders: make(map[uint]*domain.Order),
		byCorr: make(map[string]uint),
		audits: make(map[string][]byte),
	}
}

func (r *memOrderRepo) Create(_ context.Context, order *domain.Order) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byCorr[order.CorrelationID]; ok {
		cp := *r.orders[id]
		return &cp, nil
	}
	order.ID = r.nextID
	r.nextID++
	cp := *order
	r.orders[order.ID] = &cp
	r.byCorr[order.CorrelationID] = order.ID
	return order, nil
}

func (r *memOrderRepo) FindByID(_ context.Context, id uint) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, &saga.NotFoundError{Resource: "order", ID: "?"}
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) FindByCorrelationID(_ context.Context, corr string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCorr[corr]
	if !ok {
		return nil, &saga.NotFoundError{Resource: "order", ID: corr}
	}
	cp := *r.orders[id]
	return &cp, nil
}

func (r *memOrderRepo) FindByUserID(_ context.Context, userID uint, limit, offset int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memOrderRepo) UpdateStatus(_ context.Context, id uint, from, to domain.OrderStatus, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if reason != "" {
		o.CancelReason = reason
	}
	return true, nil
}

func (r *memOrderRepo) RecordCheckoutAudit(_ context.Context, corr string, cartID, userID uint, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.audits[corr]; !ok {
		r.audits[corr] = payload
	}
	return nil
}

type memOrderPublisher struct {
	mu        sync.Mutex
	cancelled []saga.OrderCancelled
	fail      bool
}

func (p *memOrderPublisher) PublishOrderCancelled(_ context.Context, evt saga.OrderCancelled) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.cancelled = append(p.cancelled, evt)
	return nil
}

func (p *memOrderPublisher) published() []saga.OrderCancelled {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]saga.OrderCancelled(nil), p.cancelled...)
}

func newTestService() (*OrderService, *memOrderRepo, *memOrderPublisher) {
	repo := newMemOrderRepo()
	pub := &memOrderPublisher{}
	svc := NewOrderService(repo, idempotency.NewMemoryStore(), pub, otel.Tracer("test"))
	return svc, repo, pub
}

func sampleRequest(corr string) CreateOrderRequest {
	return CreateOrderRequest{
		UserID:        7,
		CorrelationID: corr,
		PaymentMethod: "card",
		Items: []CreateOrderItem{
			{ProductID: 1, ProductName: "keyboard", Quantity: 2, UnitPrice: 50},
			{ProductID: 2, ProductName: "mouse", Quantity: 1, UnitPrice: 20},
		},
	}
}

func TestCreateOrderIsIdempotentPerCheckout(t *testing.T) {
	svc, _, _ := newTestService()
	first, err := svc.CreateOrder(context.Background(), sampleRequest("cart-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.TotalAmount != 120 {
		t.Errorf("total = %v, want 120", first.TotalAmount)
	}
	second, err := svc.CreateOrder(context.Background(), sampleRequest("cart-1"))
	if err != nil {
		t.Fatalf("retried create: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("retried checkout produced a second order: %d != %d", second.ID, first.ID)
	}
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	svc, _, _ := newTestService()
	req := sampleRequest("cart-2")
	req.Items = nil
	if _, err := svc.CreateOrder(context.Background(), req); err == nil {
		t.Fatal("expected error for empty items")
	}
}

func TestStockCommitFailedCancelsOrder(t *testing.T) {
	svc, repo, pub := newTestService()
	order, _ := svc.CreateOrder(context.Background(), sampleRequest("cart-3"))

	evt := saga.StockCommitFailed{
		CorrelationID: "cart-3",
		UserID:        7,
		ErrorMessage:  "insufficient stock for product 2: required 1, available 0",
	}
	if err := svc.HandleStockCommitFailed(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := repo.FindByID(context.Background(), order.ID)
	if got.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	published := pub.published()
	if len(published) != 1 {
		t.Fatalf("expected 1 OrderCancelled, got %d", len(published))
	}
	if published[0].CorrelationID != "cart-3" || published[0].OrderID != order.ID {
		t.Errorf("bad event: %+v", published[0])
	}
	if len(published[0].Items) != 2 {
		t.Errorf("event must carry full line items for restore, got %d", len(published[0].Items))
	}
}

func TestStockCommitFailedRedeliveryCancelsOnce(t *testing.T) {
	svc, _, pub := newTestService()
	_, _ = svc.CreateOrder(context.Background(), sampleRequest("cart-4"))

	evt := saga.StockCommitFailed{CorrelationID: "cart-4"}
	for i := 0; i < 3; i++ {
		if err := svc.HandleStockCommitFailed(context.Background(), evt); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if got := len(pub.published()); got != 1 {
		t.Errorf("OrderCancelled published %d times, want 1", got)
	}
}

func TestStockCommitFailedBeforeOrderVisibleParks(t *testing.T) {
	svc, _, _ := newTestService()
	evt := saga.StockCommitFailed{CorrelationID: "cart-ghost"}
	err := svc.HandleStockCommitFailed(context.Background(), evt)
	var transient *saga.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError while order not visible, got %v", err)
	}
}

func TestPublishFailureKeepsEventRetriable(t *testing.T) {
	svc, repo, pub := newTestService()
	order, _ := svc.CreateOrder(context.Background(), sampleRequest("cart-5"))

	pub.fail = true
	evt := saga.StockCommitFailed{CorrelationID: "cart-5"}
	err := svc.HandleStockCommitFailed(context.Background(), evt)
	var transient *saga.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError on publish failure, got %v", err)
	}
	// 取消已生效，但事件必须随重试补发
	got, _ := repo.FindByID(context.Background(), order.ID)
	if got.Status != domain.StatusCancelled {
		t.Fatalf("order should already be cancelled, got %s", got.Status)
	}

	pub.fail = false
	if err := svc.HandleStockCommitFailed(context.Background(), evt); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(pub.published()) != 1 {
		t.Errorf("event published %d times after retry, want 1", len(pub.published()))
	}
}

func TestOperatorCancelPublishesCompensation(t *testing.T) {
	svc, _, pub := newTestService()
	order, _ := svc.CreateOrder(context.Background(), sampleRequest("cart-6"))

	cancelled, err := svc.CancelOrder(context.Background(), order.ID, "cancelled by user")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Errorf("status = %s", cancelled.Status)
	}
	if len(pub.published()) != 1 {
		t.Errorf("expected OrderCancelled event, got %d", len(pub.published()))
	}
}

func TestCancelConfirmedOrderRejected(t *testing.T) {
	svc, _, _ := newTestService()
	order, _ := svc.CreateOrder(context.Background(), sampleRequest("cart-7"))
	if _, err := svc.ConfirmOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	_, err := svc.CancelOrder(context.Background(), order.ID, "too late")
	if !saga.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestCheckoutAuditRecordedOnce(t *testing.T) {
	svc, repo, _ := newTestService()
	evt := saga.CheckoutInitiated{
		CorrelationID: "cart-8",
		CartID:        8,
		UserID:        7,
		Items:         []saga.LineItem{{ProductID: 1, Quantity: 1}},
	}
	for i := 0; i < 2; i++ {
		if err := svc.HandleCheckoutInitiated(context.Background(), evt); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(repo.audits) != 1 {
		t.Errorf("audit rows = %d, want 1", len(repo.audits))
	}
}
