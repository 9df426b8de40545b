// internal/service/cart/application/service.go

// Package application 编排购物车用例和结算发起流程。
// Checkout 是整条 Saga 的起点：同步预检、同步建单、
// 异步发布扣减请求，然后立刻把 Saga 句柄交还给调用方。
package application

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercado/internal/pkg/logger"
	"mercado/internal/saga"
	"mercado/internal/service/cart/domain"
	"mercado/internal/service/cart/domain/port"
)

// ErrEmptyCart 拒绝空购物车的结算请求。
var ErrEmptyCart = errors.New("cannot checkout an empty cart")

// CartView 是带商品信息的购物车读模型。
type CartView struct {
	CartID uint           `json:"cartId"`
	UserID uint           `json:"userId"`
	Items  []CartItemView `json:"items"`
	Total  float64        `json:"total"`
}

type CartItemView struct {
	ProductID   uint    `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Subtotal    float64 `json:"subtotal"`
}

// CheckoutResult 是结算的同步应答：订单已创建，库存扣减在途。
// 调用方拿着 orderId 轮询订单状态得知最终结果。
type CheckoutResult struct {
	CorrelationID string `json:"correlationId"`
	OrderID       uint   `json:"orderId"`
	Status        string `json:"status"`
}

// CartService 聚合购物车用例。
type CartService struct {
	repo     domain.CartRepository
	products port.ProductGateway
	orders   port.OrderGateway
	events   port.EventPublisher
	tracer   trace.Tracer
}

func NewCartService(
	repo domain.CartRepository,
	products port.ProductGateway,
	orders port.OrderGateway,
	events port.EventPublisher,
	tracer trace.Tracer,
) *CartService {
	return &CartService{repo: repo, products: products, orders: orders, events: events, tracer: tracer}
}

// GetCart 返回带商品名称和单价的购物车视图。
func (s *CartService) GetCart(ctx context.Context, userID uint) (*CartView, error) {
	cart, err := s.repo.FindOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

// AddItem 加入商品，先确认商品存在且存量够得上合并后的数量。
// 这里的库存检查只是建议性的，权威裁决在结算后的异步扣减。
func (s *CartService) AddItem(ctx context.Context, userID, productID uint, quantity int) (*CartView, error) {
	info, err := s.lookupProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	cart, err := s.repo.FindOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if want := cart.QuantityMap()[productID] + quantity; quantity > 0 && info.Stock < want {
		return nil, &saga.InsufficientStockError{ProductID: productID, Required: want, Available: info.Stock}
	}
	if err := cart.AddItem(productID, quantity); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

// SetItemQuantity 覆盖条目数量，归零即移除。
func (s *CartService) SetItemQuantity(ctx context.Context, userID, productID uint, quantity int) (*CartView, error) {
	if quantity > 0 {
		info, err := s.lookupProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		if info.Stock < quantity {
			return nil, &saga.InsufficientStockError{ProductID: productID, Required: quantity, Available: info.Stock}
		}
	}
	cart, err := s.repo.FindOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := cart.SetItemQuantity(productID, quantity); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID uint) (*CartView, error) {
	cart, err := s.repo.FindOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.RemoveItem(productID)
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

func (s *CartService) ClearCart(ctx context.Context, userID uint) error {
	cart, err := s.repo.FindOrCreateByUserID(ctx, userID)
	if err != nil {
		return err
	}
	cart.Clear()
	return s.repo.Save(ctx, cart)
}

// Checkout 发起结算 Saga：
//  1. 空车直接拒绝；
//  2. 同步库存预检，快速挡掉注定失败的结算（不保留库存）；
//  3. 为本次结算铸造 correlationId 并先落库，再同步创建 PENDING 订单；
//  4. 发布 CheckoutInitiated（审计）和 StockCommitRequested（权威扣减）；
//  5. 清空购物车（连同 correlationId），返回 Saga 句柄。
//
// 扣减请求发布失败时购物车和已落库的 correlationId 都保持原样：
// 用户重试复用同一个 Saga 实例，拿回同一单，不会重复下单或重复扣减。
// 结算成功后 ID 随购物车一起清空，下一次结算是一个全新的实例。
func (s *CartService) Checkout(ctx context.Context, userID uint, paymentMethod string) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "cart.Checkout",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
	defer span.End()

	cart, err := s.repo.FindOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	quantities := cart.QuantityMap()

	// 同步预检：通过只代表"此刻可行"，权威裁决在异步扣减
	if err := s.products.ValidateStock(ctx, quantities); err != nil {
		logger.Ctx(ctx).Info().Err(err).Uint("user_id", userID).Msg("checkout rejected by stock pre-check")
		return nil, err
	}

	// 上一次结算如果停在"订单已建、扣减请求未发出"，这里拿到的是
	// 同一个实例 ID；否则铸造新 ID 并在建单之前落库，宕机后重试
	// 仍能接上同一个实例
	correlationID := cart.CheckoutToken
	if correlationID == "" {
		correlationID = saga.NewCartCorrelationID(cart.ID)
		cart.CheckoutToken = correlationID
		if err := s.repo.Save(ctx, cart); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("saga.correlation_id", correlationID))
	log := logger.Ctx(ctx).With().Str("correlation_id", correlationID).Logger()

	infos, err := s.lookupProducts(ctx, cart)
	if err != nil {
		return nil, err
	}

	draft := port.OrderDraft{
		UserID:        userID,
		CorrelationID: correlationID,
		PaymentMethod: paymentMethod,
	}
	for _, item := range cart.Items {
		info := infos[item.ProductID]
		draft.Items = append(draft.Items, port.OrderDraftItem{
			ProductID:   item.ProductID,
			ProductName: info.Name,
			Quantity:    item.Quantity,
			UnitPrice:   info.Price,
		})
	}
	ref, err := s.orders.CreateOrder(ctx, draft)
	if err != nil {
		return nil, err
	}

	items := make([]saga.LineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, saga.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	// 审计事件尽力而为：发布失败不终止结算
	initiated := saga.CheckoutInitiated{
		CorrelationID: correlationID,
		CartID:        cart.ID,
		UserID:        userID,
		PaymentMethod: paymentMethod,
		Items:         items,
	}
	if err := s.events.PublishCheckoutInitiated(ctx, initiated); err != nil {
		log.Warn().Err(err).Msg("failed to publish CheckoutInitiated audit event")
	}

	// 扣减请求是 Saga 的推进器，发布失败必须让调用方重试
	commit := saga.StockCommitRequested{
		CorrelationID:     correlationID,
		UserID:            userID,
		ProductQuantities: quantities,
	}
	if err := s.events.PublishStockCommitRequested(ctx, commit); err != nil {
		return nil, &saga.TransientError{Op: "publish StockCommitRequested", Err: err}
	}

	cart.Clear()
	if err := s.repo.Save(ctx, cart); err != nil {
		// Saga 已在途，购物车没清干净只是美观问题
		log.Warn().Err(err).Msg("failed to clear cart after checkout")
	}

	log.Info().Uint("order_id", ref.OrderID).Int("items", len(items)).Msg("checkout initiated")
	return &CheckoutResult{
		CorrelationID: correlationID,
		OrderID:       ref.OrderID,
		Status:        ref.Status,
	}, nil
}

func (s *CartService) lookupProduct(ctx context.Context, productID uint) (port.ProductInfo, error) {
	infos, err := s.products.FindProductsByIDs(ctx, []uint{productID})
	if err != nil {
		return port.ProductInfo{}, err
	}
	if len(infos) == 0 {
		return port.ProductInfo{}, &saga.NotFoundError{Resource: "product", ID: formatID(productID)}
	}
	return infos[0], nil
}

func (s *CartService) lookupProducts(ctx context.Context, cart *domain.Cart) (map[uint]port.ProductInfo, error) {
	ids := make([]uint, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	infos, err := s.products.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]port.ProductInfo, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, &saga.NotFoundError{Resource: "product", ID: formatID(id)}
		}
	}
	return byID, nil
}

func (s *CartService) buildView(ctx context.Context, cart *domain.Cart) (*CartView, error) {
	view := &CartView{CartID: cart.ID, UserID: cart.UserID, Items: []CartItemView{}}
	if cart.IsEmpty() {
		return view, nil
	}
	infos, err := s.lookupProducts(ctx, cart)
	if err != nil {
		// 商品被下架不应让购物车页面整体失败，缺失条目按未知商品展示
		if !saga.IsNotFound(err) {
			return nil, err
		}
		infos = map[uint]port.ProductInfo{}
		fetched, ferr := s.products.FindProductsByIDs(ctx, idsOf(cart))
		if ferr == nil {
			for _, info := range fetched {
				infos[info.ID] = info
			}
		}
	}
	for _, item := range cart.Items {
		info := infos[item.ProductID]
		view.Items = append(view.Items, CartItemView{
			ProductID:   item.ProductID,
			ProductName: info.Name,
			Quantity:    item.Quantity,
			UnitPrice:   info.Price,
			Subtotal:    info.Price * float64(item.Quantity),
		})
		view.Total += info.Price * float64(item.Quantity)
	}
	return view, nil
}

func idsOf(cart *domain.Cart) []uint {
	ids := make([]uint, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
