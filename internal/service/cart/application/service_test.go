// internal/service/cart/application/service_test.go
package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"

	"mercado/internal/saga"
	"mercado/internal/service/cart/domain"
	"mercado/internal/service/cart/domain/port"
)

type memCartRepo struct {
	mu     sync.Mutex
	nextID uint
	carts  map[uint]*domain.Cart // 按 userID 索引
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{nextID: 1, carts: make(map[uint]*domain.Cart)}
}

func (r *memCartRepo) FindOrCreateByUserID(_ context.Context, userID uint) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.carts[userID]; ok {
		cp := *c
		cp.Items = append([]domain.CartItem(nil), c.Items...)
		return &cp, nil
	}
	c := &domain.Cart{ID: r.nextID, UserID: userID}
	r.nextID++
	r.carts[userID] = c
	cp := *c
	return &cp, nil
}

func (r *memCartRepo) Save(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	r.carts[cart.UserID] = &cp
	return nil
}

type fakeProductGateway struct {
	products     map[uint]port.ProductInfo
	insufficient *saga.InsufficientStockError
}

func (g *fakeProductGateway) ValidateStock(_ context.Context, quantities map[uint]int) error {
	if g.insufficient != nil {
		return g.insufficient
	}
	for id := range quantities {
		if _, ok := g.products[id]; !ok {
			return &saga.NotFoundError{Resource: "product", ID: "?"}
		}
	}
	return nil
}

func (g *fakeProductGateway) FindProductsByIDs(_ context.Context, ids []uint) ([]port.ProductInfo, error) {
	var out []port.ProductInfo
	for _, id := range ids {
		if info, ok := g.products[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

type fakeOrderGateway struct {
	mu     sync.Mutex
	nextID uint
	drafts map[string]port.OrderRef // correlationID → 订单，建单幂等
	calls  []port.OrderDraft
}

func newFakeOrderGateway() *fakeOrderGateway {
	return &fakeOrderGateway{nextID: 100, drafts: make(map[string]port.OrderRef)}
}

func (g *fakeOrderGateway) CreateOrder(_ context.Context, draft port.OrderDraft) (port.OrderRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, draft)
	if ref, ok := g.drafts[draft.CorrelationID]; ok {
		return ref, nil
	}
	ref := port.OrderRef{OrderID: g.nextID, Status: "PENDING"}
	g.nextID++
	g.drafts[draft.CorrelationID] = ref
	return ref, nil
}

type fakeCartPublisher struct {
	mu         sync.Mutex
	initiated  []saga.CheckoutInitiated
	commits    []saga.StockCommitRequested
	failCommit bool
}

func (p *fakeCartPublisher) PublishCheckoutInitiated(_ context.Context, evt saga.CheckoutInitiated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initiated = append(p.initiated, evt)
	return nil
}

func (p *fakeCartPublisher) PublishStockCommitRequested(_ context.Context, evt saga.StockCommitRequested) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCommit {
		return errors.New("broker unavailable")
	}
	p.commits = append(p.commits, evt)
	return nil
}

func newTestCartService() (*CartService, *memCartRepo, *fakeProductGateway, *fakeOrderGateway, *fakeCartPublisher) {
	repo := newMemCartRepo()
	products := &fakeProductGateway{products: map[uint]port.ProductInfo{
		1: {ID: 1, Name: "keyboard", Price: 50, Stock: 10},
		2: {ID: 2, Name: "mouse", Price: 20, Stock: 5},
	}}
	orders := newFakeOrderGateway()
	pub := &fakeCartPublisher{}
	svc := NewCartService(repo, products, orders, pub, otel.Tracer("test"))
	return svc, repo, products, orders, pub
}

func TestAddItemMergesQuantities(t *testing.T) {
	svc, _, _, _, _ := newTestCartService()
	ctx := context.Background()
	if _, err := svc.AddItem(ctx, 7, 1, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	view, err := svc.AddItem(ctx, 7, 1, 3)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Quantity != 5 {
		t.Errorf("view = %+v, want merged quantity 5", view.Items)
	}
	if view.Total != 250 {
		t.Errorf("total = %v, want 250", view.Total)
	}
}

func TestAddItemBeyondStockRejected(t *testing.T) {
	svc, _, _, _, _ := newTestCartService()
	ctx := context.Background()
	if _, err := svc.AddItem(ctx, 7, 2, 4); err != nil {
		t.Fatalf("add within stock: %v", err)
	}
	// 合并后的数量超过当前存量，建议性检查直接拒绝
	_, err := svc.AddItem(ctx, 7, 2, 2)
	if !saga.IsInsufficientStock(err) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	view, _ := svc.GetCart(ctx, 7)
	if len(view.Items) != 1 || view.Items[0].Quantity != 4 {
		t.Errorf("rejected add must not change the cart: %+v", view.Items)
	}
}

func TestAddUnknownProductRejected(t *testing.T) {
	svc, _, _, _, _ := newTestCartService()
	if _, err := svc.AddItem(context.Background(), 7, 99, 1); !saga.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	svc, _, _, _, _ := newTestCartService()
	_, err := svc.Checkout(context.Background(), 7, "card")
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	svc, repo, _, orders, pub := newTestCartService()
	ctx := context.Background()
	_, _ = svc.AddItem(ctx, 7, 1, 2)
	_, _ = svc.AddItem(ctx, 7, 2, 1)

	result, err := svc.Checkout(ctx, 7, "card")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.Status != "PENDING" || result.OrderID == 0 {
		t.Errorf("result = %+v", result)
	}
	if !strings.HasPrefix(result.CorrelationID, "cart-1-") {
		t.Errorf("correlation id = %q, want a cart-1 instance id", result.CorrelationID)
	}

	// 订单草稿带商品名和结算时的单价
	if len(orders.calls) != 1 {
		t.Fatalf("order created %d times", len(orders.calls))
	}
	draft := orders.calls[0]
	if len(draft.Items) != 2 || draft.Items[0].ProductName == "" || draft.Items[0].UnitPrice == 0 {
		t.Errorf("draft items missing product snapshot: %+v", draft.Items)
	}

	// 两个事件都已发布，且携带同一个 correlationId
	if len(pub.initiated) != 1 || len(pub.commits) != 1 {
		t.Fatalf("events: initiated=%d commits=%d", len(pub.initiated), len(pub.commits))
	}
	if pub.commits[0].CorrelationID != result.CorrelationID {
		t.Errorf("commit event correlation mismatch")
	}
	if pub.commits[0].ProductQuantities[1] != 2 || pub.commits[0].ProductQuantities[2] != 1 {
		t.Errorf("commit quantities = %+v", pub.commits[0].ProductQuantities)
	}

	// 结算成功后购物车清空
	cart, _ := repo.FindOrCreateByUserID(ctx, 7)
	if !cart.IsEmpty() {
		t.Errorf("cart not cleared after checkout: %+v", cart.Items)
	}
}

func TestCheckoutRejectedByPreCheck(t *testing.T) {
	svc, repo, products, orders, pub := newTestCartService()
	ctx := context.Background()
	_, _ = svc.AddItem(ctx, 7, 1, 2)
	products.insufficient = &saga.InsufficientStockError{ProductID: 1, Required: 2, Available: 1}

	_, err := svc.Checkout(ctx, 7, "card")
	if !saga.IsInsufficientStock(err) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	// 预检失败：不建单、不发事件、购物车原样保留
	if len(orders.calls) != 0 || len(pub.commits) != 0 {
		t.Error("pre-check failure must not create orders or publish events")
	}
	cart, _ := repo.FindOrCreateByUserID(ctx, 7)
	if cart.IsEmpty() {
		t.Error("cart must survive a rejected checkout")
	}
}

// 同一个用户的每次结算都是独立的 Saga 实例：第二次结算必须
// 拿到新的 correlationId 和新订单，而不是被去重成第一单的无效重放。
func TestSecondCheckoutStartsNewSagaInstance(t *testing.T) {
	svc, _, _, orders, pub := newTestCartService()
	ctx := context.Background()

	_, _ = svc.AddItem(ctx, 7, 1, 1)
	first, err := svc.Checkout(ctx, 7, "card")
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}

	_, _ = svc.AddItem(ctx, 7, 2, 1)
	second, err := svc.Checkout(ctx, 7, "card")
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}

	if first.CorrelationID == second.CorrelationID {
		t.Fatalf("both checkouts share correlation id %q", first.CorrelationID)
	}
	if first.OrderID == second.OrderID {
		t.Errorf("second checkout returned the first order %d", first.OrderID)
	}
	if len(orders.drafts) != 2 {
		t.Errorf("orders created = %d, want 2", len(orders.drafts))
	}
	if len(pub.commits) != 2 {
		t.Fatalf("commit events = %d, want 2", len(pub.commits))
	}
	if pub.commits[1].CorrelationID != second.CorrelationID {
		t.Errorf("second commit event carries %q, want %q", pub.commits[1].CorrelationID, second.CorrelationID)
	}
	if pub.commits[1].ProductQuantities[2] != 1 {
		t.Errorf("second commit quantities = %+v", pub.commits[1].ProductQuantities)
	}
}

func TestCheckoutRetryAfterPublishFailureReusesOrder(t *testing.T) {
	svc, repo, _, orders, pub := newTestCartService()
	ctx := context.Background()
	_, _ = svc.AddItem(ctx, 7, 1, 1)

	pub.failCommit = true
	_, err := svc.Checkout(ctx, 7, "card")
	var transient *saga.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	// 失败时购物车保留，重试仍可发起
	cart, _ := repo.FindOrCreateByUserID(ctx, 7)
	if cart.IsEmpty() {
		t.Fatal("cart must survive a failed checkout")
	}

	pub.failCommit = false
	result, err := svc.Checkout(ctx, 7, "card")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	// 失败时落库的实例 ID 被复用，重试拿回同一单
	if len(orders.drafts) != 1 {
		t.Errorf("retry created a second order: %d", len(orders.drafts))
	}
	if result.OrderID != orders.drafts[result.CorrelationID].OrderID {
		t.Errorf("order id mismatch")
	}
	if len(pub.commits) != 1 {
		t.Errorf("commit events = %d, want 1", len(pub.commits))
	}
}
