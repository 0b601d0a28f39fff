package service

import (
	"context"
	"time"

	"storefront-checkout/internal/models"
)

// EventPublisher publishes order domain events after commit. Publishing is
// best-effort: failures are logged and never undo a committed write.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// IdempotencyStore remembers which order a checkout idempotency key produced.
type IdempotencyStore interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Remember(ctx context.Context, key string, orderID int64, ttl time.Duration) error
	Recall(ctx context.Context, key string) (int64, bool, error)
	Forget(ctx context.Context, key string) error
}

// Locker is a short-lived distributed lock.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}
