// internal/service/product/application/service_test.go
package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"

	"mercado/internal/saga"
	"mercado/internal/saga/idempotency"
	"mercado/internal/service/product/domain"
)

// --- 测试替身 ---

// memRepo 模拟 GORM 仓储的事务语义：幂等标记和库存变更在同一把锁下
// 原子完成，业务失败时整个"事务"回滚——标记和库存都不动。
type memRepo struct {
	mu       sync.Mutex
	products map[uint]*domain.Product
	guard    *idempotency.MemoryStore
}

func newMemRepo(guard *idempotency.MemoryStore) *memRepo {
	return &memRepo{products: make(map[uint]*domain.Product), guard: guard}
}

func (r *memRepo) put(p domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.products[p.ID] = &cp
}

func (r *memRepo) stock(id uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].Stock
}

func (r *memRepo) Create(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uint(len(r.products) + 1)
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uint) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, &saga.NotFoundError{Resource: "product", ID: fmt.Sprint(id)}
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) FindByIDs(_ context.Context, ids []uint) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memRepo) FindAll(_ context.Context, limit, offset int) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint, 0, len(r.products))
	for id := range r.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []domain.Product
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, *r.products[ids[i]])
	}
	return out, nil
}

func (r *memRepo) Save(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	cp.Version++
	r.products[p.ID] = &cp
	p.Version = cp.Version
	return nil
}

func (r *memRepo) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return &saga.NotFoundError{Resource: "product", ID: fmt.Sprint(id)}
	}
	delete(r.products, id)
	return nil
}

func (r *memRepo) CommitDecrement(ctx context.Context, correlationID string, quantities map[uint]int) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	// 业务校验失败等价于回滚：不留标记、不动库存
	for _, id := range ids {
		p, ok := r.products[id]
		if !ok {
			return nil, &saga.NotFoundError{Resource: "product", ID: fmt.Sprint(id)}
		}
		if p.Stock < quantities[id] {
			return nil, &saga.InsufficientStockError{ProductID: id, Required: quantities[id], Available: p.Stock}
		}
	}
	if err := r.guard.MarkProcessed(ctx, correlationID, saga.KindStockCommitRequested); err != nil {
		return nil, err
	}
	var updated []domain.Product
	for _, id := range ids {
		p := r.products[id]
		p.Stock -= quantities[id]
		p.Version++
		updated = append(updated, *p)
	}
	return updated, nil
}

func (r *memRepo) RestoreIncrement(ctx context.Context, correlationID string, items []saga.LineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guard.MarkProcessed(ctx, correlationID, saga.KindOrderCancelled); err != nil {
		return err
	}
	for _, item := range items {
		if p, ok := r.products[item.ProductID]; ok {
			p.Stock += item.Quantity
			p.Version++
		}
	}
	return nil
}

// memSerializer 用进程内互斥锁模拟分布式锁。
type memSerializer struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newMemSerializer() *memSerializer {
	return &memSerializer{locks: make(map[uint]*sync.Mutex)}
}

func (s *memSerializer) lockFor(id uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[id]; !ok {
		s.locks[id] = &sync.Mutex{}
	}
	return s.locks[id]
}

func (s *memSerializer) LockProducts(_ context.Context, ids []uint) (func(), error) {
	acquired := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		m := s.lockFor(id)
		m.Lock()
		acquired = append(acquired, m)
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}, nil
}

type memPublisher struct {
	mu       sync.Mutex
	failed   []saga.StockCommitFailed
	failNext int // 前 N 次发布失败，模拟 broker 瞬时不可用
}

func (p *memPublisher) PublishStockCommitFailed(_ context.Context, evt saga.StockCommitFailed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return errors.New("broker unavailable")
	}
	p.failed = append(p.failed, evt)
	return nil
}

func (p *memPublisher) published() []saga.StockCommitFailed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]saga.StockCommitFailed(nil), p.failed...)
}

func newTestService() (*ProductService, *memRepo, *memPublisher, *idempotency.MemoryStore) {
	guard := idempotency.NewMemoryStore()
	repo := newMemRepo(guard)
	pub := &memPublisher{}
	svc := NewProductService(repo, guard, newMemSerializer(), pub, nil, otel.Tracer("test"))
	return svc, repo, pub, guard
}

// --- 同步预检 ---

func TestCheckSufficiencyFailsFast(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.put(domain.Product{ID: 1, Name: "keyboard", Stock: 10})
	repo.put(domain.Product{ID: 2, Name: "mouse", Stock: 1})

	_, err := svc.CheckSufficiency(context.Background(), map[uint]int{1: 2, 2: 5})
	var insufficient *saga.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.ProductID != 2 || insufficient.Required != 5 || insufficient.Available != 1 {
		t.Errorf("unexpected detail: %+v", insufficient)
	}

	// 预检是只读的，不保留库存
	if got := repo.stock(1); got != 10 {
		t.Errorf("pre-check must not reserve stock, got %d", got)
	}
}

func TestCheckSufficiencyUnknownProduct(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.put(domain.Product{ID: 1, Stock: 10})

	_, err := svc.CheckSufficiency(context.Background(), map[uint]int{1: 1, 99: 1})
	if !saga.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

// --- 权威扣减 ---

func TestStockCommitDecrementsAllProducts(t *testing.T) {
	svc, repo, pub, _ := newTestService()
	repo.put(domain.Product{ID: 1, Stock: 10})
	repo.put(domain.Product{ID: 2, Stock: 5})

	evt := saga.StockCommitRequested{
		CorrelationID:     "cart-1",
		UserID:            7,
		ProductQuantities: map[uint]int{1: 3, 2: 5},
	}
	if err := svc.HandleStockCommitRequested(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.stock(1); got != 7 {
		t.Errorf("product 1 stock = %d, want 7", got)
	}
	if got := repo.stock(2); got != 0 {
		t.Errorf("product 2 stock = %d, want 0", got)
	}
	if len(pub.published()) != 0 {
		t.Errorf("no failure event expected, got %d", len(pub.published()))
	}
}

func TestStockCommitIsAllOrNothing(t *testing.T) {
	svc, repo, pub, _ := newTestService()
	repo.put(domain.Product{ID: 1, Stock: 10})
	repo.put(domain.Product{ID: 2, Stock: 2})

	evt := saga.StockCommitRequested{
		CorrelationID:     "cart-2",
		UserID:            7,
		ProductQuantities: map[uint]int{1: 3, 2: 5},
	}
	if err := svc.HandleStockCommitRequested(context.Background(), evt); err != nil {
		t.Fatalf("business failure must be acknowledged, got %v", err)
	}

	// 一个商品不足，另一个也不能扣
	if got := repo.stock(1); got != 10 {
		t.Errorf("product 1 stock = %d, want untouched 10", got)
	}
	failed := pub.published()
	if len(failed) != 1 {
		t.Fatalf("expected 1 StockCommitFailed, got %d", len(failed))
	}
	if failed[0].CorrelationID != "cart-2" {
		t.Errorf("failure carries wrong correlation id %q", failed[0].CorrelationID)
	}
	if failed[0].ErrorMessage == "" {
		t.Error("failure event must describe the cause")
	}
}

func TestStockCommitRedeliveryHasNoEffect(t *testing.T) {
	svc, repo, pub, _ := newTestService()
	repo.put(domain.Product{ID: 1, Stock: 10})

	evt := saga.StockCommitRequested{
		CorrelationID:     "cart-3",
		ProductQuantities: map[uint]int{1: 4},
	}
	for i := 0; i < 3; i++ {
		if err := svc.HandleStockCommitRequested(context.Background(), evt); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if got := repo.stock(1); got != 6 {
		t.Errorf("stock = %d after redeliveries, want 6", got)
	}
	if len(pub.published()) != 0 {
		t.Errorf("redelivery must not publish failures, got %d", len(pub.published()))
	}
}

func TestStockCommitFailureRedeliveryPublishesOnce(t *testing.T) {
	svc, _, pub, _ := newTestService()
	// 商品不存在：第一次投递发布失败事件并留下处理标记
	evt := saga.StockCommitRequested{
		CorrelationID:     "cart-4",
		ProductQuantities: map[uint]int{42: 1},
	}
	if err := svc.HandleStockCommitRequested(context.Background(), evt); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandleStockCommitRequested(context.Background(), evt); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if got := len(pub.published()); got != 1 {
		t.Errorf("failure event published %d times, want 1", got)
	}
}

func TestCommitRejectionSurvivesPublishFailure(t *testing.T) {
	svc, repo, pub, guard := newTestService()
	repo.put(domain.Product{ID: 1, Stock: 1})

	evt := saga.StockCommitRequested{
		CorrelationID:     "cart-8",
		ProductQuantities: map[uint]int{1: 5},
	}

	// 扣减被拒，但补偿事件发布失败：必须走重试而不是确认，
	// 否则订单永远停在 PENDING
	pub.failNext = 1
	err := svc.HandleStockCommitRequested(context.Background(), evt)
	var transient *saga.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError when compensation publish fails, got %v", err)
	}
	if len(pub.published()) != 0 {
		t.Fatalf("nothing should be published yet, got %d", len(pub.published()))
	}

	// 重投递补发补偿事件并落下处理标记
	if err := svc.HandleStockCommitRequested(context.Background(), evt); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := len(pub.published()); got != 1 {
		t.Fatalf("StockCommitFailed published %d times after retry, want 1", got)
	}
	if got := repo.stock(1); got != 1 {
		t.Errorf("stock = %d, rejected commit must not touch it", got)
	}
	processed, _ := guard.WasProcessed(context.Background(), "cart-8", saga.KindStockCommitRequested)
	if !processed {
		t.Error("rejected commit must leave a processed record so the restore can unblock")
	}

	// 此后的重投递是普通重复，不再发布第二条补偿事件
	if err := svc.HandleStockCommitRequested(context.Background(), evt); err != nil {
		t.Fatalf("third delivery: %v", err)
	}
	if got := len(pub.published()); got != 1 {
		t.Errorf("duplicate delivery republished the failure: %d events", got)
	}
}

// --- 补偿恢复 ---

func TestRestoreParksUntilCommitProcessed(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.put(domain.Product{ID: 1, Stock: 6})

	cancelled := saga.OrderCancelled{
		CorrelationID: "cart-5",
		OrderID:       11,
		Items:         []saga.LineItem{{ProductID: 1, Quantity: 4}},
	}

	// 乱序：restore 先到，必须停靠而不是加库存
	err := svc.HandleOrderCancelled(context.Background(), cancelled)
	var transient *saga.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError for early restore, got %v", err)
	}
	if got := repo.stock(1); got != 6 {
		t.Fatalf("early restore must not change stock, got %d", got)
	}

	// 扣减到达并处理后，重试的 restore 才生效
	commit := saga.StockCommitRequested{
		CorrelationID:     "cart-5",
		ProductQuantities: map[uint]int{1: 4},
	}
	if err := svc.HandleStockCommitRequested(context.Background(), commit); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := svc.HandleOrderCancelled(context.Background(), cancelled); err != nil {
		t.Fatalf("retried restore: %v", err)
	}
	if got := repo.stock(1); got != 6 {
		t.Errorf("stock = %d after commit+restore, want back to 6", got)
	}
}

func TestRestoreRedeliveryHasNoEffect(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.put(domain.Product{ID: 1, Stock: 10})

	commit := saga.StockCommitRequested{
		CorrelationID:     "cart-6",
		ProductQuantities: map[uint]int{1: 3},
	}
	if err := svc.HandleStockCommitRequested(context.Background(), commit); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cancelled := saga.OrderCancelled{
		CorrelationID: "cart-6",
		Items:         []saga.LineItem{{ProductID: 1, Quantity: 3}},
	}
	for i := 0; i < 3; i++ {
		if err := svc.HandleOrderCancelled(context.Background(), cancelled); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if got := repo.stock(1); got != 10 {
		t.Errorf("stock = %d, restore must apply exactly once (want 10)", got)
	}
}

// --- 并发性质 ---

// 多个 Saga 并发争抢同一商品时：库存永不为负，且
// 初始库存 - 最终库存 恰好等于成功扣减的数量之和。
func TestConcurrentCommitsNeverOversell(t *testing.T) {
	svc, repo, pub, _ := newTestService()
	const initial = 50
	repo.put(domain.Product{ID: 1, Stock: initial})

	rng := rand.New(rand.NewSource(1))
	const sagas = 40
	quantities := make([]int, sagas)
	for i := range quantities {
		quantities[i] = 1 + rng.Intn(3)
	}

	var wg sync.WaitGroup
	for i := 0; i < sagas; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			evt := saga.StockCommitRequested{
				CorrelationID:     fmt.Sprintf("cart-%d", 100+i),
				ProductQuantities: map[uint]int{1: quantities[i]},
			}
			if err := svc.HandleStockCommitRequested(context.Background(), evt); err != nil {
				t.Errorf("saga %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	final := repo.stock(1)
	if final < 0 {
		t.Fatalf("stock went negative: %d", final)
	}

	rejected := make(map[string]bool)
	for _, f := range pub.published() {
		rejected[f.CorrelationID] = true
	}
	committed := 0
	for i := 0; i < sagas; i++ {
		if !rejected[fmt.Sprintf("cart-%d", 100+i)] {
			committed += quantities[i]
		}
	}
	if initial-final != committed {
		t.Errorf("stock delta %d != sum of committed quantities %d", initial-final, committed)
	}
}

func TestMalformedQuantitiesRejectedWithCompensation(t *testing.T) {
	svc, repo, pub, _ := newTestService()
	repo.put(domain.Product{ID: 1, Stock: 10})

	evt := saga.StockCommitRequested{
		CorrelationID:     "cart-7",
		ProductQuantities: map[uint]int{1: -2},
	}
	if err := svc.HandleStockCommitRequested(context.Background(), evt); err != nil {
		t.Fatalf("deterministic bad payload must not be retried, got %v", err)
	}
	if got := repo.stock(1); got != 10 {
		t.Errorf("stock changed on malformed request: %d", got)
	}
	if len(pub.published()) != 1 {
		t.Errorf("expected compensation event for malformed commit, got %d", len(pub.published()))
	}
}
