package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront-checkout/internal/models"
	"storefront-checkout/internal/payu"
	"storefront-checkout/internal/store"
	"storefront-checkout/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ConfirmationResult says what a confirmation did to the order.
type ConfirmationResult string

const (
	// ConfirmationApplied means the order and payment reflect the notification.
	ConfirmationApplied ConfirmationResult = "applied"
	// ConfirmationIgnored means the order was already in a terminal status
	// and the notification tried to move it elsewhere.
	ConfirmationIgnored ConfirmationResult = "ignored"
	// ConfirmationUnmapped means the gateway state is not in the mapping
	// table. Nothing was written.
	ConfirmationUnmapped ConfirmationResult = "unmapped"
)

// ConfirmationOutcome is the result of processing one notification.
type ConfirmationOutcome struct {
	Result        ConfirmationResult
	OrderID       int64
	From          string
	To            string
	PaymentStatus string
	StockApplied  bool
}

// PaymentService reconciles gateway confirmations against the Order Store
type PaymentService struct {
	store      store.Repository
	signer     payu.Signer
	merchantID string
	events     EventPublisher
	locker     Locker
	lockTTL    time.Duration
	logger     *zap.Logger
}

// NewPaymentService creates a new payment service. events and locker may be nil.
func NewPaymentService(repo store.Repository, signer payu.Signer, merchantID string, events EventPublisher, locker Locker, lockTTL time.Duration) *PaymentService {
	if lockTTL <= 0 {
		lockTTL = 15 * time.Second
	}
	return &PaymentService{
		store:      repo,
		signer:     signer,
		merchantID: merchantID,
		events:     events,
		locker:     locker,
		lockTTL:    lockTTL,
		logger:     util.GetLogger(),
	}
}

// HandleConfirmation verifies a notification and applies it to the order in
// a single transaction. Replays of the same notification are harmless and
// stock is decremented at most once per order.
func (s *PaymentService) HandleConfirmation(ctx context.Context, n payu.Confirmation) (*ConfirmationOutcome, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleConfirmation",
		attribute.String("reference_sale", n.ReferenceSale),
		attribute.String("state_pol", n.StatePol))
	defer span.End()

	start := time.Now()
	defer func() {
		util.ConfirmationLatency.Observe(time.Since(start).Seconds())
	}()

	if err := s.verify(n); err != nil {
		util.ConfirmationsTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("Rejected confirmation",
			zap.String("reference_sale", n.ReferenceSale),
			zap.Error(err))
		return nil, err
	}

	outcome, ok := payu.Lookup(n.StatePol)
	if !ok {
		util.ConfirmationsTotal.WithLabelValues(string(ConfirmationUnmapped)).Inc()
		s.logger.Warn("Unmapped gateway state, ignoring confirmation",
			zap.String("state_pol", n.StatePol),
			zap.String("reference_sale", n.ReferenceSale))
		return &ConfirmationOutcome{Result: ConfirmationUnmapped}, nil
	}

	orderID, err := n.OrderID()
	if err != nil {
		util.ConfirmationsTotal.WithLabelValues("failed").Inc()
		return nil, &ValidationError{Code: CodeInvalidItem, Line: -1, Field: "extra2", Reason: "no order id in notification"}
	}
	span.SetAttributes(attribute.Int64("order_id", orderID))

	release, err := s.lock(ctx, orderID)
	if err != nil {
		util.ConfirmationsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	defer release()

	result, err := s.apply(ctx, orderID, outcome, n)
	if err != nil {
		err = wrapPersistence("apply confirmation", err)
		util.RecordError(span, err)
		util.ConfirmationsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Confirmation failed",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return nil, err
	}

	util.ConfirmationsTotal.WithLabelValues(string(result.Result)).Inc()
	if result.From != result.To {
		util.OrderStatusTransitions.WithLabelValues(result.From, result.To).Inc()
	}
	s.logger.Info("Confirmation processed",
		zap.Int64("order_id", orderID),
		zap.String("result", string(result.Result)),
		zap.String("from", result.From),
		zap.String("to", result.To),
		zap.String("transaction_id", n.TransactionID))

	if result.Result == ConfirmationApplied {
		s.publishStatusChanged(ctx, result, n.TransactionID)
	}
	return result, nil
}

func (s *PaymentService) verify(n payu.Confirmation) error {
	if s.merchantID != "" && strings.TrimSpace(n.MerchantID) != s.merchantID {
		return &AuthorizationError{Reason: "unknown merchant"}
	}
	if n.Sign == "" || !s.signer.VerifyConfirmation(n.MerchantID, n.ReferenceSale, n.Value, n.Currency, n.StatePol, n.Sign) {
		return &AuthorizationError{Reason: "signature mismatch"}
	}
	return nil
}

// lock takes the per-order confirmation lock. The row lock taken inside the
// transaction is what guarantees correctness, so a broken lock backend only
// logs.
func (s *PaymentService) lock(ctx context.Context, orderID int64) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := fmt.Sprintf("confirmation:order:%d", orderID)
	ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn("Confirmation lock unavailable", zap.Int64("order_id", orderID), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, &ConflictError{Reason: fmt.Sprintf("confirmation for order %d already in progress", orderID)}
	}

	return func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("Failed to release confirmation lock", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}, nil
}

func (s *PaymentService) apply(ctx context.Context, orderID int64, outcome payu.Outcome, n payu.Confirmation) (*ConfirmationOutcome, error) {
	result := &ConfirmationOutcome{OrderID: orderID}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "order", IDs: []string{strconv.FormatInt(orderID, 10)}}
		}
		if err != nil {
			return err
		}

		if uid := n.UserID(); uid != "" && uid != order.UserID {
			s.logger.Warn("Confirmation user does not match order",
				zap.Int64("order_id", orderID),
				zap.String("extra1", uid),
				zap.String("order_user_id", order.UserID))
		}

		target, paymentStatus := outcome.OrderStatus, outcome.PaymentStatus
		if target == models.OrderStatusPaid && !amountMatches(n.Value, order.Total) {
			s.logger.Warn("Approved amount does not match order total",
				zap.Int64("order_id", orderID),
				zap.String("value", n.Value),
				zap.String("total", order.Total.StringFixed(2)))
			target, paymentStatus = models.OrderStatusError, models.PaymentStatusFailed
		}

		result.From = order.Status
		result.To = order.Status
		result.StockApplied = order.StockApplied

		if models.IsTerminalOrderStatus(order.Status) && target != order.Status {
			result.Result = ConfirmationIgnored
			s.logger.Warn("Ignoring transition out of terminal status",
				zap.Int64("order_id", orderID),
				zap.String("status", order.Status),
				zap.String("requested", target))
			return nil
		}

		if err := tx.UpdateOrderStatus(ctx, orderID, target, n.ReferenceSale); err != nil {
			return err
		}
		if err := s.upsertPayment(ctx, tx, order, paymentStatus, n); err != nil {
			return err
		}
		if target == models.OrderStatusPaid && !order.StockApplied {
			if err := applyStock(ctx, tx, orderID, s.logger); err != nil {
				return err
			}
			result.StockApplied = true
		}

		result.Result = ConfirmationApplied
		result.To = target
		result.PaymentStatus = paymentStatus
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PaymentService) upsertPayment(ctx context.Context, tx store.Tx, order *models.Order, status string, n payu.Confirmation) error {
	amount, err := decimal.NewFromString(strings.TrimSpace(n.Value))
	if err != nil {
		amount = order.Total
	}
	currency := strings.TrimSpace(n.Currency)
	if currency == "" {
		currency = order.Currency
	}

	payment, err := tx.PaymentByOrderForUpdate(ctx, order.ID)
	if errors.Is(err, store.ErrNotFound) {
		payment = &models.Payment{OrderID: order.ID, UserID: order.UserID}
	} else if err != nil {
		return err
	}

	payment.Method = n.Method()
	if n.TransactionID != "" {
		payment.TransactionID = n.TransactionID
	}
	payment.Amount = amount
	payment.Currency = currency
	if masked := payu.MaskCard(n.CardNumber); masked != "" {
		payment.MaskedReference = masked
	}
	payment.Status = status
	payment.Signature = n.Sign

	if payment.ID == 0 {
		return tx.InsertPayment(ctx, payment)
	}
	return tx.UpdatePayment(ctx, payment)
}

func (s *PaymentService) publishStatusChanged(ctx context.Context, r *ConfirmationOutcome, transactionID string) {
	if s.events == nil {
		return
	}
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:       r.OrderID,
		From:          r.From,
		To:            r.To,
		PaymentStatus: r.PaymentStatus,
		TransactionID: transactionID,
		StockApplied:  r.StockApplied,
	}
	if err := s.events.PublishOrderStatusChanged(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Int64("order_id", r.OrderID), zap.Error(err))
	}
}

// amountMatches compares the notified value with the order total at the
// currency's minor unit.
func amountMatches(value string, total decimal.Decimal) bool {
	v, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return v.Round(2).Equal(total.Round(2))
}
