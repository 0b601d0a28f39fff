package store

import (
	"context"
	"errors"

	"storefront-checkout/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Tx is the set of writes and locked reads available inside a transaction.
type Tx interface {
	UserByID(ctx context.Context, id string) (*models.User, error)
	ExistingProductIDs(ctx context.Context, ids []int64) (map[int64]bool, error)

	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status, referenceCode string) error
	OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	DeleteOrder(ctx context.Context, id int64) error

	InsertPayment(ctx context.Context, payment *models.Payment) error
	PaymentByOrderForUpdate(ctx context.Context, orderID int64) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error

	DecrementStock(ctx context.Context, productID int64, quantity int) (clamped bool, err error)
	MarkStockApplied(ctx context.Context, orderID int64) error
}

// Repository is the Order Store. It is the only writer of order, order item
// and payment rows.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	Ping(ctx context.Context) error
}

var _ Repository = (*Store)(nil)
var _ Tx = (*sqlTx)(nil)
