package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront-checkout/internal/models"
	"storefront-checkout/internal/store"
	"storefront-checkout/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Buyer is the identity placing the order.
type Buyer struct {
	UserID string
	Email  string
	Name   string
}

// OrderOptions tune order creation.
type OrderOptions struct {
	Timeout                  time.Duration
	Currency                 string
	CreatePaymentPlaceholder bool
	IdempotencyTTL           time.Duration
}

// CreatedOrder is returned once the order and its lines are committed.
type CreatedOrder struct {
	OrderID  int64
	Total    decimal.Decimal
	Currency string
	Buyer    Buyer
	Reused   bool
}

// OrderService creates orders and serves the read side of the Order Store
type OrderService struct {
	store  store.Repository
	events EventPublisher
	idem   IdempotencyStore
	opts   OrderOptions
	logger *zap.Logger
}

// NewOrderService creates a new order service. events and idem may be nil.
func NewOrderService(repo store.Repository, events EventPublisher, idem IdempotencyStore, opts OrderOptions) *OrderService {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "COP"
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &OrderService{
		store:  repo,
		events: events,
		idem:   idem,
		opts:   opts,
		logger: util.GetLogger(),
	}
}

// CreateOrder persists a validated cart as an order with its lines in one
// transaction. It re-checks the user and every product because time passes
// between assembling the cart and creating the order.
func (s *OrderService) CreateOrder(ctx context.Context, cart *Cart, buyer Buyer) (*CreatedOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.String("user_id", buyer.UserID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderCreateLatency.Observe(time.Since(start).Seconds())
	}()

	if cart == nil || len(cart.Lines) == 0 {
		util.OrdersFailedTotal.WithLabelValues(CodeEmptyCart).Inc()
		return nil, &ValidationError{Code: CodeEmptyCart, Line: -1, Field: "cartItems", Reason: "cart is empty"}
	}
	if buyer.UserID == "" {
		buyer.UserID = cart.UserID
	}
	if buyer.UserID != cart.UserID {
		util.OrdersFailedTotal.WithLabelValues(CodeForbidden).Inc()
		return nil, &AuthorizationError{Reason: "cart belongs to another user"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	order := &models.Order{
		UserID:   buyer.UserID,
		Total:    cart.Total,
		Status:   models.OrderStatusPending,
		Currency: s.opts.Currency,
	}
	var items []models.OrderItem

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		user, err := tx.UserByID(ctx, buyer.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "user", IDs: []string{buyer.UserID}}
		}
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}

		ids := cart.ProductIDs()
		existing, err := tx.ExistingProductIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("lookup products: %w", err)
		}
		var missing []string
		for _, id := range ids {
			if !existing[id] {
				missing = append(missing, strconv.FormatInt(id, 10))
			}
		}
		if len(missing) > 0 {
			return &NotFoundError{Kind: "product", IDs: missing}
		}

		order.BuyerEmail = firstNonEmpty(buyer.Email, user.Email)
		order.BuyerName = firstNonEmpty(buyer.Name, user.DisplayName)
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		items = make([]models.OrderItem, 0, len(cart.Lines))
		for _, line := range cart.Lines {
			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			}
			if err := tx.InsertOrderItem(ctx, &item); err != nil {
				return err
			}
			items = append(items, item)
		}

		if s.opts.CreatePaymentPlaceholder {
			return tx.InsertPayment(ctx, &models.Payment{
				OrderID:  order.ID,
				UserID:   order.UserID,
				Method:   "payu",
				Amount:   order.Total,
				Currency: order.Currency,
				Status:   models.PaymentStatusPending,
			})
		}
		return nil
	})
	if err != nil {
		err = wrapPersistence("create order", err)
		util.RecordError(span, err)
		util.OrdersFailedTotal.WithLabelValues(ErrorCode(err)).Inc()
		s.logger.Warn("Order creation failed",
			zap.String("user_id", buyer.UserID),
			zap.Error(err))
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("items", len(items)))

	s.publishCreated(ctx, order, items)

	return &CreatedOrder{
		OrderID:  order.ID,
		Total:    order.Total,
		Currency: order.Currency,
		Buyer:    Buyer{UserID: order.UserID, Email: order.BuyerEmail, Name: order.BuyerName},
	}, nil
}

// CreateOrderOnce is CreateOrder guarded by a client idempotency key. A
// retried checkout with the same key gets the pending order it created
// before instead of a second one.
func (s *OrderService) CreateOrderOnce(ctx context.Context, key string, cart *Cart, buyer Buyer) (*CreatedOrder, error) {
	key = strings.TrimSpace(key)
	if s.idem == nil || key == "" {
		return s.CreateOrder(ctx, cart, buyer)
	}
	scoped := cart.UserID + ":" + key

	if orderID, ok, err := s.idem.Recall(ctx, scoped); err != nil {
		s.logger.Warn("Idempotency recall failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return s.reuseOrder(ctx, orderID, cart.UserID)
	}

	// The claim only has to outlive the creation deadline; the long TTL
	// applies once the key resolves to an order.
	locked, err := s.idem.TryLock(ctx, scoped, s.opts.Timeout+time.Second)
	if err != nil {
		s.logger.Warn("Idempotency lock failed, creating without it", zap.String("key", key), zap.Error(err))
		return s.CreateOrder(ctx, cart, buyer)
	}
	if !locked {
		return nil, &ConflictError{Reason: "checkout with this idempotency key is in progress"}
	}

	created, err := s.CreateOrder(ctx, cart, buyer)
	if err != nil {
		if fErr := s.idem.Forget(ctx, scoped); fErr != nil {
			s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(fErr))
		}
		return nil, err
	}

	if err := s.idem.Remember(ctx, scoped, created.OrderID, s.opts.IdempotencyTTL); err != nil {
		s.logger.Warn("Failed to remember idempotency key", zap.String("key", key), zap.Error(err))
	}
	return created, nil
}

func (s *OrderService) reuseOrder(ctx context.Context, orderID int64, userID string) (*CreatedOrder, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Kind: "order", IDs: []string{strconv.FormatInt(orderID, 10)}}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load order", Err: err}
	}
	if order.UserID != userID {
		return nil, &AuthorizationError{Reason: "idempotency key belongs to another user"}
	}
	if order.Status != models.OrderStatusPending {
		return nil, &ConflictError{Reason: fmt.Sprintf("order %d is already %s", order.ID, order.Status)}
	}

	s.logger.Info("Duplicate checkout detected, reusing order", zap.Int64("order_id", order.ID))
	return &CreatedOrder{
		OrderID:  order.ID,
		Total:    order.Total,
		Currency: order.Currency,
		Buyer:    Buyer{UserID: order.UserID, Email: order.BuyerEmail, Name: order.BuyerName},
		Reused:   true,
	}, nil
}

func (s *OrderService) publishCreated(ctx context.Context, order *models.Order, items []models.OrderItem) {
	if s.events == nil {
		return
	}
	data := make([]models.OrderItemData, 0, len(items))
	for _, it := range items {
		data = append(data, models.OrderItemData{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:  order.ID,
		UserID:   order.UserID,
		Total:    order.Total,
		Currency: order.Currency,
		Items:    data,
	}
	if err := s.events.PublishOrderCreated(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// GetOrder retrieves an order by ID with its lines
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, &NotFoundError{Kind: "order", IDs: []string{strconv.FormatInt(orderID, 10)}}
	}
	if err != nil {
		return nil, nil, &PersistenceError{Op: "get order", Err: err}
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "get order items", Err: err}
	}

	return order, items, nil
}

// GetPayment retrieves the payment for an order
func (s *OrderService) GetPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	payment, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Kind: "payment", IDs: []string{strconv.FormatInt(orderID, 10)}}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get payment", Err: err}
	}
	return payment, nil
}

// PurgeOrder is the administrative hard delete of an order, its lines and
// its payment.
func (s *OrderService) PurgeOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.PurgeOrder")
	defer span.End()

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		err := tx.DeleteOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "order", IDs: []string{strconv.FormatInt(orderID, 10)}}
		}
		return err
	})
	if err != nil {
		return wrapPersistence("purge order", err)
	}

	s.logger.Info("Order purged", zap.Int64("order_id", orderID))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
