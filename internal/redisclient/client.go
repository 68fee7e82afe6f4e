package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cart-sync/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/set_summary.lua
var setSummaryScript string

// ErrCacheMiss is returned when a key is absent
var ErrCacheMiss = errors.New("cache miss")

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	summaryScript *redis.Script
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

	return Wrap(rdb), nil
}

// Wrap builds a Client around an existing connection
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		summaryScript: redis.NewScript(setSummaryScript),
	}
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetSnapshot reads a cached cart snapshot
func (c *Client) GetSnapshot(ctx context.Context, userID string) (models.Snapshot, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Snapshot{}, ErrCacheMiss
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("redis get failed: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return models.Snapshot{}, fmt.Errorf("unmarshal snapshot failed: %w", err)
	}
	return snapshot, nil
}

// SetSnapshot caches a cart snapshot
func (c *Client) SetSnapshot(ctx context.Context, userID string, snapshot models.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}
	if err := c.rdb.Set(ctx, snapshotKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateSnapshot drops a cached snapshot
func (c *Client) InvalidateSnapshot(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, snapshotKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// ClaimIdempotencyKey records key if unseen.
// It returns false when the key was already claimed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, idempotencyKey(key), time.Now().Unix(), ttl).Result()
}

// ForgetIdempotencyKey releases a claim so a retried request can proceed
func (c *Client) ForgetIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}

// AcquireLock acquires a distributed lock and returns its owner token.
// An empty token means the lock is held by someone else.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// SetSummary stores a profile summary unless a newer version is present.
// It reports whether the write happened.
func (c *Client) SetSummary(ctx context.Context, summary models.ProfileSummary, version int64, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return false, fmt.Errorf("marshal summary failed: %w", err)
	}

	result, err := c.summaryScript.Run(ctx, c.rdb, []string{summaryKey(summary.UserID)},
		version, payload, int64(ttl.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("set summary script failed: %w", err)
	}

	written, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return written == 1, nil
}

// GetSummary reads a stored profile summary
func (c *Client) GetSummary(ctx context.Context, userID string) (models.ProfileSummary, error) {
	fields, err := c.rdb.HGetAll(ctx, summaryKey(userID)).Result()
	if err != nil {
		return models.ProfileSummary{}, fmt.Errorf("redis hgetall failed: %w", err)
	}
	payload, ok := fields["payload"]
	if !ok {
		return models.ProfileSummary{}, ErrCacheMiss
	}

	var summary models.ProfileSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return models.ProfileSummary{}, fmt.Errorf("unmarshal summary failed: %w", err)
	}
	return summary, nil
}

func snapshotKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

func summaryKey(userID string) string {
	return fmt.Sprintf("summary:%s", userID)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
