package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published once an order and its lines are committed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID  int64           `json:"order_id"`
	UserID   string          `json:"user_id"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	Items    []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after a confirmation commits a new status
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id,omitempty"`
	StockApplied  bool   `json:"stock_applied"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
