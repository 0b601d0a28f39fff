package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront-checkout/internal/models"

	"github.com/jmoiron/sqlx"
)

const (
	productColumns   = `id, name, description, price, stock, category_id, on_offer, discount`
	orderColumns     = `id, user_id, total, status, buyer_name, buyer_email, currency, stock_applied, reference_code, created_at, updated_at`
	orderItemColumns = `id, order_id, product_id, quantity, unit_price`
	paymentColumns   = `id, order_id, user_id, method, transaction_id, amount, currency, masked_reference, status, signature, created_at, updated_at`
)

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) q(query string) string {
	return t.tx.Rebind(query)
}

// insert runs an INSERT and returns the generated id. Postgres has no
// LastInsertId, so the statement is extended with RETURNING there.
func (t *sqlTx) insert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if t.tx.DriverName() == DriverPostgres {
		var id int64
		err := t.tx.GetContext(ctx, &id, t.q(query+` RETURNING id`), args...)
		return id, err
	}

	res, err := t.tx.ExecContext(ctx, t.q(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UserByID looks a user up in the directory table
func (t *sqlTx) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := t.tx.GetContext(ctx, &user, t.q(`SELECT id, email, display_name FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistingProductIDs returns the subset of ids present in the catalog
func (t *sqlTx) ExistingProductIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	query, args, err := sqlx.In(`SELECT id FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var existing []int64
	if err := t.tx.SelectContext(ctx, &existing, t.q(query), args...); err != nil {
		return nil, err
	}
	for _, id := range existing {
		found[id] = true
	}
	return found, nil
}

// InsertOrder creates a new order row and fills in its id and timestamps
func (t *sqlTx) InsertOrder(ctx context.Context, order *models.Order) error {
	now := time.Now().UTC()
	id, err := t.insert(ctx, `
		INSERT INTO orders (user_id, total, status, buyer_name, buyer_email, currency, stock_applied, reference_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.UserID, order.Total, order.Status, order.BuyerName, order.BuyerEmail,
		order.Currency, order.StockApplied, order.ReferenceCode, now, now)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	order.ID = id
	order.CreatedAt = now
	order.UpdatedAt = now
	return nil
}

// InsertOrderItem creates a new order item
func (t *sqlTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	id, err := t.insert(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES (?, ?, ?, ?)`,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	item.ID = id
	return nil
}

// LockOrder reads an order and holds its row lock until the transaction ends
func (t *sqlTx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order, t.q(`SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus sets status and the last reference code. Zero affected
// rows means the order does not exist.
func (t *sqlTx) UpdateOrderStatus(ctx context.Context, id int64, status, referenceCode string) error {
	res, err := t.tx.ExecContext(ctx,
		t.q(`UPDATE orders SET status = ?, reference_code = ?, updated_at = ? WHERE id = ?`),
		status, referenceCode, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

// OrderItems lists the lines of an order inside the transaction
func (t *sqlTx) OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := t.tx.SelectContext(ctx, &items,
		t.q(`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = ? ORDER BY id`), orderID)
	return items, err
}

// DeleteOrder purges an order together with its payments and lines
func (t *sqlTx) DeleteOrder(ctx context.Context, id int64) error {
	if _, err := t.tx.ExecContext(ctx, t.q(`DELETE FROM payments WHERE order_id = ?`), id); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, t.q(`DELETE FROM order_items WHERE order_id = ?`), id); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, t.q(`DELETE FROM orders WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

// InsertPayment creates a payment row
func (t *sqlTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	now := time.Now().UTC()
	id, err := t.insert(ctx, `
		INSERT INTO payments (order_id, user_id, method, transaction_id, amount, currency, masked_reference, status, signature, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrderID, p.UserID, p.Method, p.TransactionID, p.Amount, p.Currency,
		p.MaskedReference, p.Status, p.Signature, now, now)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// PaymentByOrderForUpdate locks the payment row of an order, if any
func (t *sqlTx) PaymentByOrderForUpdate(ctx context.Context, orderID int64) (*models.Payment, error) {
	var p models.Payment
	err := t.tx.GetContext(ctx, &p,
		t.q(`SELECT `+paymentColumns+` FROM payments WHERE order_id = ? FOR UPDATE`), orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment for order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePayment rewrites the mutable payment columns
func (t *sqlTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, t.q(`
		UPDATE payments
		SET method = ?, transaction_id = ?, amount = ?, currency = ?, masked_reference = ?, status = ?, signature = ?, updated_at = ?
		WHERE id = ?`),
		p.Method, p.TransactionID, p.Amount, p.Currency, p.MaskedReference, p.Status, p.Signature, now, p.ID)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// DecrementStock lowers stock by quantity with a floor of zero. The row is
// locked first so concurrent orders for the same product serialize.
func (t *sqlTx) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	var stock int
	err := t.tx.GetContext(ctx, &stock, t.q(`SELECT stock FROM products WHERE id = ? FOR UPDATE`), productID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock product: %w", err)
	}

	_, err = t.tx.ExecContext(ctx,
		t.q(`UPDATE products SET stock = GREATEST(stock - ?, 0) WHERE id = ?`), quantity, productID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return stock < quantity, nil
}

// MarkStockApplied flags the order so its stock is never decremented twice
func (t *sqlTx) MarkStockApplied(ctx context.Context, orderID int64) error {
	_, err := t.tx.ExecContext(ctx,
		t.q(`UPDATE orders SET stock_applied = ?, updated_at = ? WHERE id = ?`), true, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("mark stock applied: %w", err)
	}
	return nil
}
