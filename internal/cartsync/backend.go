package cartsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cart-sync/internal/cart"
	"cart-sync/internal/models"
	"cart-sync/internal/util"

	"go.uber.org/zap"
)

// Local storage slot names
const (
	KeyCartItems  = "cartItems"
	KeySavedItems = "savedItems"
)

// Backend durably stores a session's snapshot.
// Authoritative backends are owners of record: a failed commit rolls the
// in-memory store back to the last confirmed snapshot.
type Backend interface {
	Name() string
	Load(ctx context.Context) (models.Snapshot, error)
	Commit(ctx context.Context, snapshot models.Snapshot) (Receipt, error)
	Authoritative() bool
}

// Receipt is a backend's answer to a commit: the snapshot it actually
// stored and, for versioned backends, the version that write produced.
// Version is zero when the backend does not version its writes.
type Receipt struct {
	Snapshot models.Snapshot
	Version  int64
}

// AggregateRefresher is implemented by backends exposing derived state
// (profile counts) that must be re-fetched after a successful commit.
type AggregateRefresher interface {
	Refresh(ctx context.Context) error
}

// LocalStorage is a string-keyed slot store, the server-side stand-in for
// browser local storage.
type LocalStorage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// LocalStorageBackend persists guest carts in two independent slots
type LocalStorageBackend struct {
	storage LocalStorage
	logger  *zap.Logger
}

// NewLocalStorageBackend creates a guest backend over storage
func NewLocalStorageBackend(storage LocalStorage) *LocalStorageBackend {
	return &LocalStorageBackend{
		storage: storage,
		logger:  util.ComponentLogger("local-storage-backend"),
	}
}

// Name implements Backend
func (b *LocalStorageBackend) Name() string { return "local" }

// Authoritative implements Backend; there is nothing to diverge from
func (b *LocalStorageBackend) Authoritative() bool { return false }

// Load reads both slots. Missing, unreadable or corrupt slots hydrate as
// empty lists instead of failing the session. Slots are user-editable, so
// the result is normalized before it reaches the store.
func (b *LocalStorageBackend) Load(ctx context.Context) (models.Snapshot, error) {
	snapshot := models.Snapshot{
		CartLines:  []models.CartLine{},
		SavedLines: []models.SavedLine{},
	}

	if raw, ok := b.read(ctx, KeyCartItems); ok {
		var lines []models.CartLine
		if err := json.Unmarshal([]byte(raw), &lines); err != nil {
			b.logger.Warn("Discarding corrupt cart slot", zap.Error(err))
		} else if lines != nil {
			snapshot.CartLines = lines
		}
	}

	if raw, ok := b.read(ctx, KeySavedItems); ok {
		var lines []models.SavedLine
		if err := json.Unmarshal([]byte(raw), &lines); err != nil {
			b.logger.Warn("Discarding corrupt saved slot", zap.Error(err))
		} else if lines != nil {
			snapshot.SavedLines = lines
		}
	}

	return cart.Normalize(snapshot), nil
}

func (b *LocalStorageBackend) read(ctx context.Context, key string) (string, bool) {
	raw, ok, err := b.storage.Get(ctx, key)
	if err != nil {
		b.logger.Warn("Failed to read local slot", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return raw, ok
}

// Commit writes each list to its own slot. The slots hold exactly what
// was sent, so the receipt echoes the snapshot.
func (b *LocalStorageBackend) Commit(ctx context.Context, snapshot models.Snapshot) (Receipt, error) {
	cartJSON, err := json.Marshal(nonNilCart(snapshot.CartLines))
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to marshal cart lines: %w", err)
	}
	savedJSON, err := json.Marshal(nonNilSaved(snapshot.SavedLines))
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to marshal saved lines: %w", err)
	}

	if err := b.storage.Set(ctx, KeyCartItems, string(cartJSON)); err != nil {
		return Receipt{}, fmt.Errorf("failed to write %s: %w", KeyCartItems, err)
	}
	if err := b.storage.Set(ctx, KeySavedItems, string(savedJSON)); err != nil {
		return Receipt{}, fmt.Errorf("failed to write %s: %w", KeySavedItems, err)
	}
	return Receipt{Snapshot: snapshot.Clone()}, nil
}

// Clear removes both slots
func (b *LocalStorageBackend) Clear(ctx context.Context) error {
	if err := b.storage.Remove(ctx, KeyCartItems); err != nil {
		return fmt.Errorf("failed to remove %s: %w", KeyCartItems, err)
	}
	if err := b.storage.Remove(ctx, KeySavedItems); err != nil {
		return fmt.Errorf("failed to remove %s: %w", KeySavedItems, err)
	}
	return nil
}

// MemoryStorage is an in-process LocalStorage
type MemoryStorage struct {
	mu    sync.RWMutex
	slots map[string]string
}

// NewMemoryStorage creates an empty store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{slots: make(map[string]string)}
}

// Get implements LocalStorage
func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[key]
	return v, ok, nil
}

// Set implements LocalStorage
func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = value
	return nil
}

// Remove implements LocalStorage
func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, key)
	return nil
}

func nonNilCart(lines []models.CartLine) []models.CartLine {
	if lines == nil {
		return []models.CartLine{}
	}
	return lines
}

func nonNilSaved(lines []models.SavedLine) []models.SavedLine {
	if lines == nil {
		return []models.SavedLine{}
	}
	return lines
}
