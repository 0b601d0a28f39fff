package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog part
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	CategoryID  int64           `db:"category_id" json:"category_id"`
	OnOffer     bool            `db:"on_offer" json:"on_offer"`
	Discount    int             `db:"discount" json:"discount"`
}

// OriginalPrice returns the pre-discount price shown struck through next to
// an offer. Products that are not on offer return their price unchanged.
func (p Product) OriginalPrice() decimal.Decimal {
	if !p.OnOffer || p.Discount <= 0 || p.Discount >= 100 {
		return p.Price
	}
	factor := decimal.NewFromInt(int64(100 - p.Discount)).Div(decimal.NewFromInt(100))
	return p.Price.Div(factor).Round(2)
}

// User is the subset of the user directory the checkout needs
type User struct {
	ID          string `db:"id" json:"id"`
	Email       string `db:"email" json:"email"`
	DisplayName string `db:"display_name" json:"display_name"`
}

// Order represents a customer order
type Order struct {
	ID            int64           `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	Total         decimal.Decimal `db:"total" json:"total"`
	Status        string          `db:"status" json:"status"`
	BuyerName     string          `db:"buyer_name" json:"buyer_name"`
	BuyerEmail    string          `db:"buyer_email" json:"buyer_email"`
	Currency      string          `db:"currency" json:"currency"`
	StockApplied  bool            `db:"stock_applied" json:"stock_applied"`
	ReferenceCode string          `db:"reference_code" json:"reference_code,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem represents items in an order
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// LineTotal is quantity times the captured unit price
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Payment represents a gateway transaction attempt for an order
type Payment struct {
	ID              int64           `db:"id" json:"id"`
	OrderID         int64           `db:"order_id" json:"order_id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Method          string          `db:"method" json:"method"`
	TransactionID   string          `db:"transaction_id" json:"transaction_id,omitempty"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Currency        string          `db:"currency" json:"currency"`
	MaskedReference string          `db:"masked_reference" json:"masked_reference,omitempty"`
	Status          string          `db:"status" json:"status"`
	Signature       string          `db:"signature" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
	OrderStatusError     = "error"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusFailed    = "failed"
)

// IsTerminalOrderStatus reports whether no further gateway update may move
// the order out of status.
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusPaid || status == OrderStatusCancelled
}
