package service

import (
	"context"

	"storefront-checkout/internal/payu"
	"storefront-checkout/internal/util"

	"go.uber.org/zap"
)

// CheckoutRequest is a browser checkout: the raw cart plus who is paying.
type CheckoutRequest struct {
	Lines          []CartLineInput
	Buyer          Buyer
	IdempotencyKey string
}

// CheckoutResult carries the created order and the signed gateway request.
type CheckoutResult struct {
	Cart     *Cart
	Order    *CreatedOrder
	Checkout *payu.Checkout
}

// CheckoutService turns a cart into a pending order and a signed PayU form.
type CheckoutService struct {
	assembler *CartAssembler
	orders    *OrderService
	builder   *payu.Builder
	logger    *zap.Logger
}

func NewCheckoutService(assembler *CartAssembler, orders *OrderService, builder *payu.Builder) *CheckoutService {
	return &CheckoutService{
		assembler: assembler,
		orders:    orders,
		builder:   builder,
		logger:    util.GetLogger(),
	}
}

// Checkout validates and prices the cart, creates the order and builds the
// gateway request. A build failure leaves the order pending; the browser
// can retry and a fresh reference code is generated each attempt.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	cart, err := s.assembler.Assemble(ctx, req.Buyer.UserID, req.Lines)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.CreateOrderOnce(ctx, req.IdempotencyKey, cart, req.Buyer)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	checkout, err := s.builder.Build(payu.PaymentRequest{
		OrderID:    order.OrderID,
		UserID:     order.Buyer.UserID,
		Total:      order.Total,
		Currency:   order.Currency,
		BuyerEmail: order.Buyer.Email,
		BuyerName:  order.Buyer.Name,
	})
	if err != nil {
		s.logger.Error("Failed to build gateway request",
			zap.Int64("order_id", order.OrderID),
			zap.Error(err))
		return nil, &UpstreamError{Op: "build gateway request", Err: err}
	}

	s.logger.Info("Checkout ready",
		zap.Int64("order_id", order.OrderID),
		zap.String("reference_code", checkout.ReferenceCode),
		zap.Bool("reused", order.Reused))

	return &CheckoutResult{Cart: cart, Order: order, Checkout: checkout}, nil
}
