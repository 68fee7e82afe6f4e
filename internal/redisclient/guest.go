package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// GuestStorage keeps a guest's cart slots in one redis hash.
// Every write refreshes the TTL so abandoned guest carts expire.
type GuestStorage struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// GuestStorage returns the slot store for a guest session
func (c *Client) GuestStorage(guestID string, ttl time.Duration) *GuestStorage {
	return &GuestStorage{
		rdb: c.rdb,
		key: fmt.Sprintf("guest:%s:cart", guestID),
		ttl: ttl,
	}
}

// Get returns the slot value and whether it exists
func (g *GuestStorage) Get(ctx context.Context, slot string) (string, bool, error) {
	v, err := g.rdb.HGet(ctx, g.key, slot).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget failed: %w", err)
	}
	return v, true, nil
}

// Set writes a slot
func (g *GuestStorage) Set(ctx context.Context, slot, value string) error {
	pipe := g.rdb.TxPipeline()
	pipe.HSet(ctx, g.key, slot, value)
	if g.ttl > 0 {
		pipe.Expire(ctx, g.key, g.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

// Remove deletes a slot
func (g *GuestStorage) Remove(ctx context.Context, slot string) error {
	if err := g.rdb.HDel(ctx, g.key, slot).Err(); err != nil {
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}
