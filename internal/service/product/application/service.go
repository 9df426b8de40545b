// internal/service/product/application/service.go

// Package application 编排商品 CRUD 与库存引擎的用例。
// 库存引擎是整条结算 Saga 的权威裁决点：同步预检只做参考，
// 这里的异步扣减才真正决定一次结算的成败。
package application

import (
	"context"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercado/internal/pkg/logger"
	"mercado/internal/saga"
	"mercado/internal/saga/idempotency"
	"mercado/internal/service/product/domain"
	"mercado/internal/service/product/domain/port"
)

// ProductService 聚合商品用例与库存引擎。
type ProductService struct {
	repo       domain.ProductRepository
	guard      idempotency.Guard
	serializer port.StockSerializer
	events     port.EventPublisher
	cache      port.ProductCache // 可为 nil，降级为全量穿透
	tracer     trace.Tracer
}

func NewProductService(
	repo domain.ProductRepository,
	guard idempotency.Guard,
	serializer port.StockSerializer,
	events port.EventPublisher,
	cache port.ProductCache,
	tracer trace.Tracer,
) *ProductService {
	return &ProductService{
		repo:       repo,
		guard:      guard,
		serializer: serializer,
		events:     events,
		cache:      cache,
		tracer:     tracer,
	}
}

// --- 商品 CRUD ---

func (s *ProductService) CreateProduct(ctx context.Context, name, description string, price float64, stock int) (*domain.Product, error) {
	if name == "" {
		return nil, errors.New("product name must not be empty")
	}
	if price < 0 || stock < 0 {
		return nil, errors.New("price and stock must not be negative")
	}
	product := &domain.Product{
		Name:        name,
		Description: description,
		Price:       price,
		Stock:       stock,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id uint) (*domain.Product, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *ProductService) ListProducts(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.FindAll(ctx, limit, offset)
}

func (s *ProductService) UpdateProduct(ctx context.Context, id uint, name, description string, price float64) (*domain.Product, error) {
	if price < 0 {
		return nil, errors.New("price must not be negative")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		product.Name = name
	}
	product.Description = description
	product.Price = price
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, err
	}
	s.invalidate(ctx, []uint{id})
	return product, nil
}

// UpdateStock 是运营侧的库存直设接口，绕开 Saga 流程。
func (s *ProductService) UpdateStock(ctx context.Context, id uint, stock int) (*domain.Product, error) {
	if stock < 0 {
		return nil, errors.New("stock must not be negative")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Stock = stock
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, err
	}
	s.invalidate(ctx, []uint{id})
	return product, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, []uint{id})
	return nil
}

// FindProductsByIDs 批量查询商品，读路径走缓存。
// cart 服务在展示和下单时用它补全商品名称与单价。
func (s *ProductService) FindProductsByIDs(ctx context.Context, ids []uint) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	hit := map[uint]domain.Product{}
	missing := ids
	if s.cache != nil {
		hit, missing = s.cache.MGet(ctx, ids)
	}

	if len(missing) > 0 {
		fromDB, err := s.repo.FindByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.MSet(ctx, fromDB)
		}
		for _, p := range fromDB {
			hit[p.ID] = p
		}
	}

	// 按请求顺序返回；数据库里不存在的 ID 直接缺位，由调用方判断
	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := hit[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

// --- 同步库存预检 ---

// CheckSufficiency 校验一批需求量能否被当前库存满足，任何一个
// 不满足立即返回该商品的 InsufficientStockError。这是结算的
// 快速失败关卡：通过只代表"此刻可行"，不保留任何库存。
// 预检必须读权威数据，所以绕过缓存直查数据库。
func (s *ProductService) CheckSufficiency(ctx context.Context, quantities map[uint]int) ([]domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "product.CheckSufficiency")
	defer span.End()

	ids, err := sortedProductIDs(quantities)
	if err != nil {
		return nil, err
	}

	products, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	snapshot := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, &saga.NotFoundError{Resource: "product", ID: formatID(id)}
		}
		if !p.HasSufficientStock(quantities[id]) {
			return nil, &saga.InsufficientStockError{
				ProductID: id,
				Required:  quantities[id],
				Available: p.Stock,
			}
		}
		snapshot = append(snapshot, p)
	}
	return snapshot, nil
}

// --- 库存引擎：Saga 事件处理 ---

// HandleStockCommitRequested 处理权威扣减请求。
// 四种出口：成功扣减、重复投递（静默确认）、业务失败（发布补偿事件后确认）、
// 瞬时故障（返回错误走重试）。
func (s *ProductService) HandleStockCommitRequested(ctx context.Context, evt saga.StockCommitRequested) error {
	ctx, span := s.tracer.Start(ctx, "product.HandleStockCommitRequested",
		trace.WithAttributes(attribute.String("saga.correlation_id", evt.CorrelationID)))
	defer span.End()
	log := logger.Ctx(ctx).With().Str("correlation_id", evt.CorrelationID).Logger()

	if evt.CorrelationID == "" {
		return errors.New("StockCommitRequested without correlationId") // 坏消息，进死信
	}

	ok, err := s.guard.ShouldProcess(ctx, evt.CorrelationID, saga.KindStockCommitRequested)
	if err != nil {
		return err
	}
	if !ok {
		log.Info().Msg("duplicate StockCommitRequested, acknowledging without effect")
		saga.ObserveProcessed(saga.KindStockCommitRequested, saga.ResultDuplicate)
		return nil
	}

	ids, err := sortedProductIDs(evt.ProductQuantities)
	if err != nil {
		// 畸形数量无法通过重试修复，走补偿出口让订单侧取消
		return s.rejectCommit(ctx, evt, err)
	}

	// 分布式锁按序获取，保证多实例对同一批商品不会交叉扣减
	release, err := s.serializer.LockProducts(ctx, ids)
	if err != nil {
		return &saga.TransientError{Op: "acquire stock locks", Err: err}
	}
	defer release()

	_, err = s.repo.CommitDecrement(ctx, evt.CorrelationID, evt.ProductQuantities)
	switch {
	case err == nil:
		s.invalidate(ctx, ids)
		log.Info().Int("products", len(ids)).Msg("stock committed")
		saga.ObserveProcessed(saga.KindStockCommitRequested, saga.ResultOK)
		return nil

	case saga.IsDuplicate(err):
		log.Info().Msg("stock commit already applied, acknowledging")
		saga.ObserveProcessed(saga.KindStockCommitRequested, saga.ResultDuplicate)
		return nil

	case saga.IsInsufficientStock(err) || saga.IsNotFound(err):
		// 业务失败：事务已整体回滚，库存和处理标记都没有落库。
		// 必须先发布 StockCommitFailed 再落标记——顺序反了的话，
		// 发布一旦失败，重投递会被标记挡住，补偿链就此断裂。
		return s.rejectCommit(ctx, evt, err)

	default:
		return err // 瞬时故障原样上抛，由传输层重试
	}
}

// rejectCommit 是扣减的补偿出口：先发布 StockCommitFailed，成功后
// 再留下处理标记。标记写失败时让消息重试；重试会重复发布失败事件，
// 由订单侧的幂等守卫去重。
func (s *ProductService) rejectCommit(ctx context.Context, evt saga.StockCommitRequested, cause error) error {
	if err := s.publishCommitFailure(ctx, evt, cause); err != nil {
		return err
	}
	if err := s.guard.MarkProcessed(ctx, evt.CorrelationID, saga.KindStockCommitRequested); err != nil && !saga.IsDuplicate(err) {
		return &saga.TransientError{Op: "mark rejected commit processed", Err: err}
	}
	return nil
}

func (s *ProductService) publishCommitFailure(ctx context.Context, evt saga.StockCommitRequested, cause error) error {
	log := logger.Ctx(ctx).With().Str("correlation_id", evt.CorrelationID).Logger()

	failure := saga.StockCommitFailed{
		CorrelationID:     evt.CorrelationID,
		UserID:            evt.UserID,
		ProductQuantities: evt.ProductQuantities,
		ErrorMessage:      cause.Error(),
	}
	if err := s.events.PublishStockCommitFailed(ctx, failure); err != nil {
		// 发布失败必须重试，否则补偿链断裂、订单永远停在 PENDING
		return &saga.TransientError{Op: "publish StockCommitFailed", Err: err}
	}
	log.Warn().Str("reason", cause.Error()).Msg("stock commit rejected, compensation event published")
	saga.ObserveProcessed(saga.KindStockCommitRequested, saga.ResultBusinessFailure)
	return nil
}

// HandleOrderCancelled 处理补偿链的末端：把取消订单占用的库存还回去。
// 恢复有一个严格的前置条件：对应的扣减事件必须已经被处理过。
// 乱序投递（restore 先于 commit 到达）时返回瞬时错误停靠等待，
// 绝不提前加库存——那会凭空制造出不存在的货。
func (s *ProductService) HandleOrderCancelled(ctx context.Context, evt saga.OrderCancelled) error {
	ctx, span := s.tracer.Start(ctx, "product.HandleOrderCancelled",
		trace.WithAttributes(attribute.String("saga.correlation_id", evt.CorrelationID)))
	defer span.End()
	log := logger.Ctx(ctx).With().Str("correlation_id", evt.CorrelationID).Logger()

	if evt.CorrelationID == "" {
		return errors.New("OrderCancelled without correlationId")
	}

	ok, err := s.guard.ShouldProcess(ctx, evt.CorrelationID, saga.KindOrderCancelled)
	if err != nil {
		return err
	}
	if !ok {
		log.Info().Msg("duplicate OrderCancelled, acknowledging without effect")
		saga.ObserveProcessed(saga.KindOrderCancelled, saga.ResultDuplicate)
		return nil
	}

	committed, err := s.guard.WasProcessed(ctx, evt.CorrelationID, saga.KindStockCommitRequested)
	if err != nil {
		return &saga.TransientError{Op: "check commit record before restore", Err: err}
	}
	if !committed {
		log.Warn().Msg("restore arrived before stock commit was processed, parking for retry")
		return &saga.TransientError{Op: "restore before commit"}
	}

	ids := make([]uint, 0, len(evt.Items))
	for _, item := range evt.Items {
		ids = append(ids, item.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	release, err := s.serializer.LockProducts(ctx, ids)
	if err != nil {
		return &saga.TransientError{Op: "acquire stock locks", Err: err}
	}
	defer release()

	err = s.repo.RestoreIncrement(ctx, evt.CorrelationID, evt.Items)
	switch {
	case err == nil:
		s.invalidate(ctx, ids)
		log.Info().Uint("order_id", evt.OrderID).Int("products", len(ids)).Msg("stock restored after cancellation")
		saga.ObserveProcessed(saga.KindOrderCancelled, saga.ResultOK)
		return nil
	case saga.IsDuplicate(err):
		saga.ObserveProcessed(saga.KindOrderCancelled, saga.ResultDuplicate)
		return nil
	default:
		return err
	}
}

func (s *ProductService) invalidate(ctx context.Context, ids []uint) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, ids)
	}
}

// sortedProductIDs 校验并按升序展开数量表。固定顺序让锁获取
// 和行更新在所有实例上一致，杜绝死锁。
func sortedProductIDs(quantities map[uint]int) ([]uint, error) {
	if len(quantities) == 0 {
		return nil, errors.New("empty product quantities")
	}
	ids := make([]uint, 0, len(quantities))
	for id, qty := range quantities {
		if qty <= 0 {
			return nil, errors.Errorf("non-positive quantity %d for product %d", qty, id)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
