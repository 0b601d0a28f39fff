package worker

import (
	"context"
	"errors"

	"storefront-checkout/internal/broker"
	"storefront-checkout/internal/models"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/util"

	"go.uber.org/zap"
)

// StockApplier applies the stock decrement of a paid order at most once.
type StockApplier interface {
	EnsureStockApplied(ctx context.Context, orderID int64) (bool, error)
}

// messageSource is the part of broker.Consumer the worker drives.
type messageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StockWorker replays stock decrements from order status events. The
// confirmation transaction normally applies stock itself; this catches
// paid orders whose inline decrement did not run.
type StockWorker struct {
	consumer     messageSource
	eventHandler *broker.EventHandler
	stock        StockApplier
	logger       *zap.Logger
}

// NewStockWorker creates a new stock reconciliation worker
func NewStockWorker(consumer *broker.Consumer, stock StockApplier) *StockWorker {
	return newStockWorker(consumer, stock)
}

func newStockWorker(consumer messageSource, stock StockApplier) *StockWorker {
	w := &StockWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		stock:        stock,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderStatusChanged(w.handleStatusChanged)
	return w
}

func (w *StockWorker) handleStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	if event.To != models.OrderStatusPaid || event.StockApplied {
		return nil
	}

	applied, err := w.stock.EnsureStockApplied(ctx, event.OrderID)
	var nf *service.NotFoundError
	if errors.As(err, &nf) {
		// Purged since the event was published
		w.logger.Warn("Order for stock event no longer exists", zap.Int64("order_id", event.OrderID))
		return nil
	}
	if err != nil {
		return err
	}

	if applied {
		w.logger.Info("Stock reconciled from event",
			zap.Int64("order_id", event.OrderID),
			zap.String("event_id", event.EventID))
	}
	return nil
}

// Start starts the worker
func (w *StockWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockWorker) Stop() error {
	w.logger.Info("Stopping stock worker")
	return w.consumer.Close()
}
