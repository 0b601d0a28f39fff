package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes a lock only if it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// pendingMarker is stored under an idempotency key while the first request
// holding it is still creating the order.
const pendingMarker = "pending"

type Client struct {
	rdb *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, tokens: make(map[string]string)}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func lockKey(name string) string {
	return "lock:" + name
}

func idempotencyKey(key string) string {
	return "idempotency:checkout:" + key
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	c.tokens[name] = token
	c.mu.Unlock()
	return true, nil
}

// ReleaseLock releases a lock taken by this client. Releasing a lock this
// client does not hold is a no-op.
func (c *Client) ReleaseLock(ctx context.Context, name string) error {
	c.mu.Lock()
	token, ok := c.tokens[name]
	delete(c.tokens, name)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, c.rdb, []string{lockKey(name)}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// TryLock claims a checkout idempotency key. It fails when the key is
// already claimed or already resolved to an order.
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, idempotencyKey(key), pendingMarker, ttl).Result()
}

// Remember resolves a claimed key to the order it created.
func (c *Client) Remember(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), orderID, ttl).Err()
}

// Recall returns the order a key resolved to. A key that is claimed but not
// yet resolved reports false.
func (c *Client) Recall(ctx context.Context, key string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if val == pendingMarker {
		return 0, false, nil
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("idempotency key %s holds %q", key, val)
	}
	return id, true, nil
}

// Forget drops a key so the checkout can be retried.
func (c *Client) Forget(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}
