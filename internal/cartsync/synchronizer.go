package cartsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cart-sync/internal/cart"
	"cart-sync/internal/models"
	"cart-sync/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Synchronizer commits snapshots to the active backend and keeps the
// in-memory store from diverging from the owner of record after a failure.
type Synchronizer struct {
	store    *cart.Store
	pending  *PendingActions
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger

	mu            sync.RWMutex
	backend       Backend
	lastKnownGood models.Snapshot
	lkgVersion    int64
}

// NewSynchronizer creates a synchronizer. A zero timeout waits forever.
func NewSynchronizer(store *cart.Store, backend Backend, pending *PendingActions, notifier Notifier, timeout time.Duration) *Synchronizer {
	return &Synchronizer{
		store:         store,
		backend:       backend,
		pending:       pending,
		notifier:      notifier,
		timeout:       timeout,
		lastKnownGood: store.Snapshot(),
		logger:        util.ComponentLogger("synchronizer"),
	}
}

// Backend returns the active backend
func (s *Synchronizer) Backend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// LastKnownGood returns the most recently confirmed snapshot
func (s *Synchronizer) LastKnownGood() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKnownGood.Clone()
}

// Reset switches the backend and establishes a new confirmed baseline
func (s *Synchronizer) Reset(backend Backend, confirmed models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = backend
	s.lastKnownGood = confirmed.Clone()
	s.lkgVersion = 0
}

// Sync commits snapshot and resolves the pending action for key. It
// returns the terminal state of the attempt and never panics or returns
// an error; failures become notifications.
func (s *Synchronizer) Sync(ctx context.Context, snapshot models.Snapshot, key string) models.SyncState {
	ctx, span := util.StartSpan(ctx, "Synchronizer.Sync")
	defer span.End()

	backend := s.Backend()
	span.SetAttributes(
		attribute.String("cart.backend", backend.Name()),
		attribute.String("cart.correlation_key", key),
	)

	util.CartSyncTotal.WithLabelValues(backend.Name(), string(models.SyncStatePending)).Inc()
	s.logger.Debug("Snapshot sync started",
		zap.String("backend", backend.Name()),
		zap.String("correlation_key", key),
		zap.String("state", string(models.SyncStatePending)))

	start := time.Now()
	receipt, err := s.commit(WithCorrelationKey(ctx, key), backend, snapshot)
	util.CartSyncLatency.WithLabelValues(backend.Name()).Observe(time.Since(start).Seconds())

	if err == nil {
		s.confirm(ctx, backend, snapshot, receipt, key)
		return models.SyncStateConfirmed
	}

	util.RecordError(span, err)
	return s.fail(backend, key, err)
}

// confirm adopts the backend's receipt as the last confirmed snapshot.
// Receipts carrying an older version than one already confirmed are
// stale: a later write has landed and the newer state is kept. The store
// takes the confirmed state only while it still shows what was sent (or
// the previous confirmed state), so mutations made meanwhile survive.
func (s *Synchronizer) confirm(ctx context.Context, backend Backend, sent models.Snapshot, receipt Receipt, key string) {
	s.mu.Lock()
	expected := []models.Snapshot{sent}
	stale := receipt.Version != 0 && receipt.Version < s.lkgVersion
	if !stale {
		expected = append(expected, s.lastKnownGood)
		s.lastKnownGood = receipt.Snapshot.Clone()
		if receipt.Version != 0 {
			s.lkgVersion = receipt.Version
		}
	}
	confirmed := s.lastKnownGood.Clone()
	adopted := s.store.CompareAndReplace(confirmed, expected...)
	s.mu.Unlock()

	if adopted && !confirmed.Equal(sent) {
		s.logger.Info("Adopted confirmed snapshot from backend",
			zap.String("backend", backend.Name()),
			zap.String("correlation_key", key),
			zap.Int64("version", receipt.Version),
			zap.Bool("stale_receipt", stale))
	}

	if refresher, ok := backend.(AggregateRefresher); ok {
		if err := refresher.Refresh(ctx); err != nil {
			s.logger.Warn("Failed to refresh aggregates", zap.Error(err))
		}
	}

	if msg, ok := s.pending.Resolve(key); ok && msg != "" {
		s.notifier.Notify(Notification{Level: LevelSuccess, Message: msg})
	}

	util.CartSyncTotal.WithLabelValues(backend.Name(), string(models.SyncStateConfirmed)).Inc()
	s.logger.Debug("Snapshot confirmed",
		zap.String("backend", backend.Name()),
		zap.String("correlation_key", key),
		zap.Int64("version", receipt.Version),
		zap.Int("cart_lines", len(confirmed.CartLines)),
		zap.Int("saved_lines", len(confirmed.SavedLines)))
}

// fail drops the pending confirmation and, for an owner of record,
// restores the last confirmed snapshot in full.
func (s *Synchronizer) fail(backend Backend, key string, err error) models.SyncState {
	s.pending.Discard(key)

	state := models.SyncStateFailed
	if backend.Authoritative() {
		s.store.Replace(s.LastKnownGood())
		state = models.SyncStateRolledBack
	}

	s.notifier.Notify(Notification{Level: LevelError, Message: FailureMessage})

	util.CartSyncTotal.WithLabelValues(backend.Name(), string(state)).Inc()
	s.logger.Error("Snapshot sync failed",
		zap.String("backend", backend.Name()),
		zap.String("correlation_key", key),
		zap.String("state", string(state)),
		zap.Error(err))
	return state
}

// commit runs the backend write on its own goroutine so a backend that
// ignores ctx still counts as failed once the timeout elapses.
func (s *Synchronizer) commit(ctx context.Context, backend Backend, snapshot models.Snapshot) (Receipt, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type result struct {
		receipt Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		receipt, err := backend.Commit(ctx, snapshot)
		done <- result{receipt: receipt, err: err}
	}()

	select {
	case r := <-done:
		return r.receipt, r.err
	case <-ctx.Done():
		return Receipt{}, fmt.Errorf("commit abandoned: %w", ctx.Err())
	}
}
