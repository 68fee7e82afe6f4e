package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cart-sync/internal/cart"
	"cart-sync/internal/models"
	"cart-sync/internal/redisclient"
	"cart-sync/internal/store"
	"cart-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrCartLocked is returned when another write for the same user holds the lock
	ErrCartLocked = errors.New("cart is being updated by another request")
	// ErrMissingUser is returned when no user identity accompanies a request
	ErrMissingUser = errors.New("user id is required")
)

const (
	lockRetryMin = 10 * time.Millisecond
	lockRetryMax = 200 * time.Millisecond
)

// SnapshotStore persists cart snapshots
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, userID string) (models.Snapshot, int64, error)
	ReplaceSnapshotTx(ctx context.Context, userID string, snapshot models.Snapshot) (int64, error)
}

// EventPublisher publishes cart change events
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, event *models.CartUpdatedEvent) error
}

// Options tunes cache and idempotency lifetimes
type Options struct {
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
	LockTTL        time.Duration
}

// CartService handles server side cart persistence
type CartService struct {
	store     SnapshotStore
	redis     *redisclient.Client
	publisher EventPublisher
	opts      Options
	logger    *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(
	store SnapshotStore,
	redis *redisclient.Client,
	publisher EventPublisher,
	opts Options,
) *CartService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Second
	}
	return &CartService{
		store:     store,
		redis:     redis,
		publisher: publisher,
		opts:      opts,
		logger:    util.GetLogger(),
	}
}

// ReplaceResult describes a completed replace
type ReplaceResult struct {
	Snapshot  models.Snapshot `json:"snapshot"`
	Version   int64           `json:"version"`
	Duplicate bool            `json:"duplicate"`
}

// GetCart returns a user's snapshot, cache first.
// A user that never stored a cart gets an empty snapshot.
func (s *CartService) GetCart(ctx context.Context, userID string) (models.Snapshot, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	if userID == "" {
		return models.Snapshot{}, ErrMissingUser
	}

	cached, err := s.redis.GetSnapshot(ctx, userID)
	if err == nil {
		util.SnapshotCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	if !errors.Is(err, redisclient.ErrCacheMiss) {
		s.logger.Warn("Snapshot cache read failed", zap.String("user_id", userID), zap.Error(err))
	}
	util.SnapshotCacheTotal.WithLabelValues("miss").Inc()

	snapshot, _, err := s.store.GetSnapshot(ctx, userID)
	if errors.Is(err, store.ErrCartNotFound) {
		return emptySnapshot(), nil
	}
	if err != nil {
		util.RecordError(span, err)
		return models.Snapshot{}, fmt.Errorf("failed to load cart: %w", err)
	}

	if err := s.redis.SetSnapshot(ctx, userID, snapshot, s.opts.CacheTTL); err != nil {
		s.logger.Warn("Snapshot cache fill failed", zap.String("user_id", userID), zap.Error(err))
	}
	return snapshot, nil
}

// ReplaceCart stores snapshot as the user's full cart state.
// A repeated idempotency key returns the current state without writing.
func (s *CartService) ReplaceCart(ctx context.Context, userID string, snapshot models.Snapshot, idempotencyKey string) (*ReplaceResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService.ReplaceCart")
	defer span.End()

	if userID == "" {
		return nil, ErrMissingUser
	}

	snapshot = cart.Normalize(snapshot)

	if idempotencyKey != "" {
		claimed, err := s.redis.ClaimIdempotencyKey(ctx, scopedKey(userID, idempotencyKey), s.opts.IdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if !claimed {
			s.logger.Info("Duplicate cart write detected",
				zap.String("user_id", userID),
				zap.String("idempotency_key", idempotencyKey))
			util.SnapshotWritesTotal.WithLabelValues("duplicate").Inc()
			current, err := s.GetCart(ctx, userID)
			if err != nil {
				return nil, err
			}
			return &ReplaceResult{Snapshot: current, Duplicate: true}, nil
		}
	}

	result, err := s.replaceLocked(ctx, userID, snapshot)
	if err != nil {
		util.RecordError(span, err)
		if idempotencyKey != "" {
			if ferr := s.redis.ForgetIdempotencyKey(ctx, scopedKey(userID, idempotencyKey)); ferr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.Error(ferr))
			}
		}
		return nil, err
	}
	return result, nil
}

func (s *CartService) replaceLocked(ctx context.Context, userID string, snapshot models.Snapshot) (*ReplaceResult, error) {
	lockKey := fmt.Sprintf("cart:%s", userID)
	token, err := s.acquireLock(ctx, lockKey)
	if err != nil {
		if errors.Is(err, ErrCartLocked) {
			util.SnapshotWritesTotal.WithLabelValues("locked").Inc()
		}
		return nil, err
	}
	defer func() {
		if err := s.redis.ReleaseLock(ctx, lockKey, token); err != nil {
			s.logger.Warn("Failed to release cart lock", zap.String("user_id", userID), zap.Error(err))
		}
	}()

	start := time.Now()
	version, err := s.store.ReplaceSnapshotTx(ctx, userID, snapshot)
	util.SnapshotWriteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.SnapshotWritesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to store cart: %w", err)
	}
	util.SnapshotWritesTotal.WithLabelValues("ok").Inc()

	if err := s.redis.SetSnapshot(ctx, userID, snapshot, s.opts.CacheTTL); err != nil {
		s.logger.Warn("Snapshot cache refresh failed, invalidating", zap.String("user_id", userID), zap.Error(err))
		_ = s.redis.InvalidateSnapshot(ctx, userID)
	}

	summary := models.SummaryOf(userID, snapshot)
	event := &models.CartUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCartUpdated,
			Timestamp: time.Now(),
		},
		UserID:     userID,
		Version:    version,
		CartCount:  summary.CartCount,
		CartLines:  summary.CartLines,
		SavedCount: summary.SavedCount,
		CartTotal:  summary.CartTotal,
	}
	if err := s.publisher.PublishCartUpdated(ctx, event); err != nil {
		// The write is durable; the summary catches up on the next change.
		s.logger.Error("Failed to publish CartUpdated event",
			zap.String("user_id", userID),
			zap.Int64("version", version),
			zap.Error(err))
	}

	s.logger.Info("Cart stored",
		zap.String("user_id", userID),
		zap.Int64("version", version),
		zap.Int("cart_lines", len(snapshot.CartLines)),
		zap.Int("saved_lines", len(snapshot.SavedLines)))

	return &ReplaceResult{Snapshot: snapshot, Version: version}, nil
}

// acquireLock waits for the per-user write lock. Writes for one user queue
// behind each other; ErrCartLocked is returned only after LockTTL elapses.
func (s *CartService) acquireLock(ctx context.Context, lockKey string) (string, error) {
	deadline := time.Now().Add(s.opts.LockTTL)
	backoff := lockRetryMin
	for {
		token, err := s.redis.AcquireLock(ctx, lockKey, s.opts.LockTTL)
		if err != nil {
			return "", fmt.Errorf("failed to acquire cart lock: %w", err)
		}
		if token != "" {
			return token, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrCartLocked
		}

		timer := time.NewTimer(min(backoff, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, lockRetryMax)
	}
}

// GetSummary returns the profile summary kept by the summary worker,
// computing it from the snapshot when the worker has not caught up yet.
func (s *CartService) GetSummary(ctx context.Context, userID string) (models.ProfileSummary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetSummary")
	defer span.End()

	if userID == "" {
		return models.ProfileSummary{}, ErrMissingUser
	}

	summary, err := s.redis.GetSummary(ctx, userID)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, redisclient.ErrCacheMiss) {
		s.logger.Warn("Summary read failed", zap.String("user_id", userID), zap.Error(err))
	}

	snapshot, err := s.GetCart(ctx, userID)
	if err != nil {
		return models.ProfileSummary{}, err
	}
	return models.SummaryOf(userID, snapshot), nil
}

func scopedKey(userID, key string) string {
	return fmt.Sprintf("cart:%s:%s", userID, key)
}

func emptySnapshot() models.Snapshot {
	return models.Snapshot{CartLines: []models.CartLine{}, SavedLines: []models.SavedLine{}}
}
