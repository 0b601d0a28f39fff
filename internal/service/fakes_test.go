package service

import (
	"context"
	"sync"
	"time"

	"storefront-checkout/internal/models"
)

// memEvents records published events.
type memEvents struct {
	mu      sync.Mutex
	created []*models.OrderCreatedEvent
	changed []*models.OrderStatusChangedEvent
	err     error
}

func (e *memEvents) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, event)
	return e.err
}

func (e *memEvents) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changed = append(e.changed, event)
	return e.err
}

// memKV implements IdempotencyStore and Locker.
type memKV struct {
	mu     sync.Mutex
	locks  map[string]bool
	orders map[string]int64
	err    error

	claimTTL    time.Duration
	rememberTTL time.Duration
}

func newMemKV() *memKV {
	return &memKV{locks: map[string]bool{}, orders: map[string]int64{}}
}

func (k *memKV) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	k.claimTTL = ttl
	k.mu.Unlock()
	return k.AcquireLock(ctx, "idem:"+key, ttl)
}

func (k *memKV) Remember(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.orders[key] = orderID
	k.rememberTTL = ttl
	return k.err
}

func (k *memKV) Recall(ctx context.Context, key string) (int64, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	id, ok := k.orders[key]
	return id, ok, k.err
}

func (k *memKV) Forget(ctx context.Context, key string) error {
	return k.ReleaseLock(ctx, "idem:"+key)
}

func (k *memKV) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return false, k.err
	}
	if k.locks[key] {
		return false, nil
	}
	k.locks[key] = true
	return true, nil
}

func (k *memKV) ReleaseLock(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.locks, key)
	return nil
}
