package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/adjust_stock.lua
var adjustStockScript string

const idempotencyPending = "pending"

type Client struct {
	rdb          *redis.Client
	adjustScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return &Client{
		rdb:          rdb,
		adjustScript: redis.NewScript(adjustStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

// SyncStock overwrites the cached stock of every given product
func (c *Client) SyncStock(ctx context.Context, stock map[int64]int) error {
	if len(stock) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for productID, qty := range stock {
		pipe.Set(ctx, stockKey(productID), qty, 0)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// AdjustStock atomically applies delta to a cached product stock, clamping at zero.
// It reports false when the product is not cached.
func (c *Client) AdjustStock(ctx context.Context, productID int64, delta int) (int64, bool, error) {
	result, err := c.adjustScript.Run(ctx, c.rdb, []string{stockKey(productID)}, delta).Result()
	if err != nil {
		return 0, false, fmt.Errorf("adjust stock script failed: %w", err)
	}

	stock, ok := result.(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected script result type")
	}
	if stock < 0 {
		return 0, false, nil
	}
	return stock, true, nil
}

// GetStock returns the cached stock of a product
func (c *Client) GetStock(ctx context.Context, productID int64) (int, bool, error) {
	n, err := c.rdb.Get(ctx, stockKey(productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// GetRate returns a cached exchange rate
func (c *Client) GetRate(ctx context.Context, currency string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, "rate:"+currency).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetRate caches an exchange rate with TTL
func (c *Client) SetRate(ctx context.Context, currency, rate string, ttl time.Duration) error {
	return c.rdb.Set(ctx, "rate:"+currency, rate, ttl).Err()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// ClaimIdempotencyKey reserves key for a new request. When the key was already
// claimed it returns the stored resource ID, or 0 while the first request is
// still in flight.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (claimed bool, existingID int64, err error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(key), idempotencyPending, ttl).Result()
	if err != nil {
		return false, 0, err
	}
	if ok {
		return true, 0, nil
	}

	v, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return c.ClaimIdempotencyKey(ctx, key, ttl)
	}
	if err != nil {
		return false, 0, err
	}
	if v == idempotencyPending {
		return false, 0, nil
	}

	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("malformed idempotency value %q: %w", v, err)
	}
	return false, id, nil
}

// CompleteIdempotencyKey stores the ID of the resource created under key
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key string, id int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), id, ttl).Err()
}

// ReleaseIdempotencyKey forgets a claim whose request failed
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}
