package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"storefront-checkout/internal/models"
	"storefront-checkout/internal/store"
	"storefront-checkout/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// applyStock decrements stock for every line of a paid order and sets the
// order's stock_applied flag. The caller must hold the order row lock and
// must have checked that the flag was false.
func applyStock(ctx context.Context, tx store.Tx, orderID int64, logger *zap.Logger) error {
	items, err := tx.OrderItems(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	for _, item := range items {
		clamped, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, store.ErrNotFound) {
			// Product removed from the catalog after the order was placed
			logger.Warn("Skipping stock decrement for missing product",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", item.ProductID))
			continue
		}
		if err != nil {
			return err
		}
		if clamped {
			util.StockClampedTotal.Inc()
			logger.Warn("Stock clamped at zero",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity))
		}
	}

	if err := tx.MarkStockApplied(ctx, orderID); err != nil {
		return err
	}
	util.StockAppliedTotal.Inc()
	return nil
}

// InventoryService replays stock decrements for paid orders. Confirmation
// processing applies stock inline; this is the backstop the worker drives
// from order events.
type InventoryService struct {
	store  store.Repository
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(repo store.Repository) *InventoryService {
	return &InventoryService{
		store:  repo,
		logger: util.GetLogger(),
	}
}

// EnsureStockApplied applies the stock decrement of a paid order unless it
// has been applied already. It reports whether this call applied it.
func (s *InventoryService) EnsureStockApplied(ctx context.Context, orderID int64) (bool, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.EnsureStockApplied", attribute.Int64("order_id", orderID))
	defer span.End()

	applied := false
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "order", IDs: []string{strconv.FormatInt(orderID, 10)}}
		}
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPaid || order.StockApplied {
			return nil
		}
		if err := applyStock(ctx, tx, orderID, s.logger); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return false, wrapPersistence("ensure stock applied", err)
	}

	if applied {
		s.logger.Info("Stock applied by reconciliation", zap.Int64("order_id", orderID))
	}
	return applied, nil
}
