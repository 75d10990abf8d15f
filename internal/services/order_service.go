package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client-facing validation messages.
const (
	MsgItemsRequired    = "Order items are required"
	MsgShippingRequired = "All shipping information is required"
	MsgInvalidItems     = "Invalid order items"
)

// Routing keys of published order events.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusUpdated = "order.status_updated"
)

// EventPublisher delivers order events to a broker.
type EventPublisher interface {
	Publish(routingKey string, body []byte) error
}

// Caller is the authenticated principal of a request.
type Caller struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool { return c.Role == models.RoleAdmin }

// OrderItemInput is one requested line.
type OrderItemInput struct {
	ProductID       string          `json:"product_id" validate:"required"`
	Quantity        int             `json:"quantity" validate:"gt=0"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

// ShippingInfo is where the order goes. Country is optional.
type ShippingInfo struct {
	Address string `validate:"required"`
	City    string `validate:"required"`
	State   string `validate:"required"`
	ZipCode string `validate:"required"`
	Country string
	Phone   string `validate:"required"`
}

// CreateOrderInput is the payload of CreateOrder.
type CreateOrderInput struct {
	Items    []OrderItemInput
	Shipping ShippingInfo
}

// Scope selects whose orders GetOrders returns.
type Scope int

const (
	ScopeMine Scope = iota
	ScopeAll
)

// Page requests a slice of a listing. Zero values select defaults.
type Page struct {
	Number int
	Limit  int
}

// OrderPage is one page of orders, newest first.
type OrderPage struct {
	Orders  []models.Order
	Page    int
	Limit   int
	Total   int64
	HasMore bool
}

// OrderEvent is the body of published order events.
type OrderEvent struct {
	Type        string             `json:"type"`
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	Status      models.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// OrderServiceOption customizes an OrderService.
type OrderServiceOption func(*OrderService)

// WithTransactor makes order and line insertion a single transaction.
func WithTransactor(tx repositories.Transactor) OrderServiceOption {
	return func(s *OrderService) { s.tx = tx }
}

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) OrderServiceOption {
	return func(s *OrderService) { s.now = now }
}

// OrderService handles business logic related to orders.
type OrderService struct {
	orders      repositories.OrderRepository
	products    repositories.ProductRepository
	carts       repositories.CartRepository
	tx          repositories.Transactor
	publisher   EventPublisher
	cfg         config.OrderConfig
	transitions transitionTable
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewOrderService creates a new OrderService. publisher may be nil.
func NewOrderService(
	orders repositories.OrderRepository,
	products repositories.ProductRepository,
	carts repositories.CartRepository,
	publisher EventPublisher,
	cfg config.OrderConfig,
	logger *zap.Logger,
	opts ...OrderServiceOption,
) *OrderService {
	s := &OrderService{
		orders:      orders,
		products:    products,
		carts:       carts,
		publisher:   publisher,
		cfg:         cfg,
		transitions: flatTransitions,
		validate:    validator.New(),
		logger:      logger,
		now:         time.Now,
	}
	if cfg.StrictTransitions {
		s.transitions = strictTransitions
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder validates the request, writes the order and its lines, clears
// the caller's cart and returns the order summary.
func (s *OrderService) CreateOrder(ctx context.Context, caller Caller, in CreateOrderInput) (*models.OrderSummary, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		UserID:          caller.UserID,
		Status:          models.StatusPendingPayment,
		ShippingAddress: in.Shipping.Address,
		ShippingCity:    in.Shipping.City,
		ShippingState:   in.Shipping.State,
		ShippingZipCode: in.Shipping.ZipCode,
		ShippingCountry: in.Shipping.Country,
		ShippingPhone:   in.Shipping.Phone,
		CreatedAt:       s.now(),
	}
	if order.ShippingCountry == "" {
		order.ShippingCountry = s.cfg.DefaultCountry
	}

	items, err := s.buildLines(ctx, order.ID, in.Items)
	if err != nil {
		return nil, err
	}
	order.TotalAmount = models.TotalOf(items)

	if err := s.persist(ctx, order, items); err != nil {
		return nil, err
	}

	s.clearCart(ctx, caller.UserID, order.ID)
	s.publish(EventOrderCreated, order)

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int("lines", len(items)),
		zap.String("total_amount", order.TotalAmount.String()))

	summary := order.Summary()
	return &summary, nil
}

func (s *OrderService) validateCreate(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return validationError(MsgItemsRequired)
	}
	if err := s.validate.Struct(in.Shipping); err != nil {
		return validationError(MsgShippingRequired)
	}
	for _, item := range in.Items {
		if err := s.validate.Struct(item); err != nil {
			return validationError(MsgInvalidItems)
		}
		if !validPrice(item.PriceAtPurchase) {
			return validationError(MsgInvalidItems)
		}
	}
	return nil
}

// validPrice accepts non-negative amounts with at most two decimal places,
// the precision of the money columns.
func validPrice(p decimal.Decimal) bool {
	return !p.IsNegative() && p.Equal(p.Round(2))
}

// buildLines turns requested items into order lines. The requested price is
// kept unless price revalidation is enabled.
func (s *OrderService) buildLines(ctx context.Context, orderID string, in []OrderItemInput) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, len(in))
	for i, item := range in {
		price := item.PriceAtPurchase
		if s.cfg.RevalidatePrices {
			product, err := s.products.GetByID(ctx, item.ProductID)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return nil, validationError(fmt.Sprintf("Product %s not found", item.ProductID))
				}
				s.logger.Error("catalog lookup failed", zap.String("product_id", item.ProductID), zap.Error(err))
				return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
			}
			if !product.Price.Equal(price) {
				s.logger.Warn("requested price differs from catalog, using catalog price",
					zap.String("product_id", item.ProductID),
					zap.String("requested", price.String()),
					zap.String("catalog", product.Price.String()))
			}
			price = product.Price
		}
		items[i] = models.OrderItem{
			ID:              uuid.New().String(),
			OrderID:         orderID,
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PriceAtPurchase: price,
		}
	}
	return items, nil
}

// persist writes the order and its lines as one unit: a transaction when the
// store has one, a compensating delete otherwise.
func (s *OrderService) persist(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	if s.tx != nil {
		err := s.tx.WithinTransaction(ctx, func(orders repositories.OrderRepository, products repositories.ProductRepository) error {
			_, _, err := s.writeOrder(ctx, orders, products, order, items)
			return err
		})
		if err != nil {
			s.logWriteFailure(order, err)
			if !isClassified(err) {
				err = fmt.Errorf("%w: %w", ErrPersistence, err)
			}
			return err
		}
		return nil
	}

	written, decremented, err := s.writeOrder(ctx, s.orders, s.products, order, items)
	if err == nil {
		return nil
	}
	s.logWriteFailure(order, err)
	if !written {
		return err
	}
	return s.compensate(ctx, order.ID, decremented, err)
}

// writeOrder inserts the order row, its lines and, when enabled, takes stock.
// On failure it reports whether the order row exists and which lines took stock.
func (s *OrderService) writeOrder(
	ctx context.Context,
	orders repositories.OrderRepository,
	products repositories.ProductRepository,
	order *models.Order,
	items []models.OrderItem,
) (bool, []models.OrderItem, error) {
	if err := orders.Create(ctx, order); err != nil {
		return false, nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := orders.CreateItems(ctx, items); err != nil {
		return true, nil, fmt.Errorf("%w: %w", ErrOrderItems, err)
	}
	if !s.cfg.CheckStock {
		return true, nil, nil
	}

	decremented := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		if err := products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			switch {
			case errors.Is(err, repositories.ErrInsufficientStock):
				err = fmt.Errorf("%w: %w", ErrInsufficientStock, err)
			case errors.Is(err, repositories.ErrNotFound):
				err = errors.Join(validationError(fmt.Sprintf("Product %s not found", item.ProductID)), err)
			default:
				err = fmt.Errorf("%w: %w", ErrPersistence, err)
			}
			return true, decremented, err
		}
		decremented = append(decremented, item)
	}
	return true, decremented, nil
}

// compensate undoes a partially written order. The delete is idempotent and
// retried once.
func (s *OrderService) compensate(ctx context.Context, orderID string, restock []models.OrderItem, cause error) error {
	for _, item := range restock {
		if err := s.products.Restock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("restock after failed order",
				zap.String("order_id", orderID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
		}
	}

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		if err = s.orders.Delete(ctx, orderID); err == nil {
			s.logger.Info("rolled back order", zap.String("order_id", orderID), zap.Int("attempt", attempt))
			return cause
		}
		s.logger.Warn("compensating delete failed",
			zap.String("order_id", orderID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	s.logger.Error("order left behind after failed line insert", zap.String("order_id", orderID), zap.Error(err))
	return errors.Join(cause, fmt.Errorf("%w: compensating delete of order %s: %w", ErrPersistence, orderID, err))
}

func (s *OrderService) logWriteFailure(order *models.Order, err error) {
	if _, ok := IsValidation(err); ok || errors.Is(err, ErrInsufficientStock) {
		s.logger.Info("order rejected", zap.String("user_id", order.UserID), zap.Error(err))
		return
	}
	s.logger.Error("order write failed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Error(err))
}

// clearCart empties the caller's cart. Failures never fail the order.
func (s *OrderService) clearCart(ctx context.Context, userID, orderID string) {
	if s.carts == nil {
		return
	}
	cartID, err := s.carts.GetCartIDByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return
		}
		s.logger.Warn("clear cart: resolve cart", zap.String("user_id", userID), zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if err := s.carts.ClearItems(ctx, cartID); err != nil {
		s.logger.Warn("clear cart", zap.String("cart_id", cartID), zap.String("order_id", orderID), zap.Error(err))
	}
}

// publish emits an order event. Failures are logged and swallowed.
func (s *OrderService) publish(eventType string, order *models.Order) {
	if s.publisher == nil {
		s.logger.Debug("no event publisher configured, skipping", zap.String("event", eventType))
		return
	}
	body, err := json.Marshal(OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		OccurredAt:  s.now(),
	})
	if err != nil {
		s.logger.Error("marshal order event", zap.String("event", eventType), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(eventType, body); err != nil {
		s.logger.Warn("publish order event",
			zap.String("event", eventType),
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}

// GetOrders lists the caller's orders, or every order for ScopeAll.
func (s *OrderService) GetOrders(ctx context.Context, caller Caller, scope Scope, page Page) (*OrderPage, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthenticated
	}

	filter := repositories.OrderFilter{}
	switch scope {
	case ScopeMine:
		filter.UserID = caller.UserID
	case ScopeAll:
		if !caller.IsAdmin() {
			return nil, ErrForbidden
		}
		filter.ExpandUsers = true
	default:
		return nil, fmt.Errorf("unknown order scope %d", scope)
	}

	page = s.normalizePage(page)
	filter.Offset = (page.Number - 1) * page.Limit
	filter.Limit = page.Limit

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		s.logger.Error("list orders failed", zap.String("user_id", caller.UserID), zap.Int("scope", int(scope)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return &OrderPage{
		Orders:  orders,
		Page:    page.Number,
		Limit:   page.Limit,
		Total:   total,
		HasMore: int64(filter.Offset+len(orders)) < total,
	}, nil
}

func (s *OrderService) normalizePage(p Page) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit <= 0 {
		p.Limit = s.cfg.PageSize
	}
	if s.cfg.MaxPageSize > 0 && p.Limit > s.cfg.MaxPageSize {
		p.Limit = s.cfg.MaxPageSize
	}
	return p
}

// UpdateOrderStatus sets the status of an order. Status matching is
// case-insensitive.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, caller Caller, orderID, status string) (*models.Order, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}

	next, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, validationError("Invalid status. Allowed: " + models.AllowedStatusList())
	}

	existing, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, s.lookupError(orderID, err)
	}
	if !s.transitions.allows(existing.Status, next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, existing.Status, next)
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, next)
	if err != nil {
		return nil, s.lookupError(orderID, err)
	}

	s.logger.Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(existing.Status)),
		zap.String("to", string(next)),
		zap.String("by", caller.UserID))
	s.publish(EventOrderStatusUpdated, updated)

	return updated, nil
}

func (s *OrderService) lookupError(orderID string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	s.logger.Error("order store call failed", zap.String("order_id", orderID), zap.Error(err))
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func isClassified(err error) bool {
	if _, ok := IsValidation(err); ok {
		return true
	}
	for _, kind := range []error{ErrPersistence, ErrOrderItems, ErrInsufficientStock} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
