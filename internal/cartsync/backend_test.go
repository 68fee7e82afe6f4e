package cartsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageBackendLoadMissingSlots(t *testing.T) {
	snapshot, err := NewLocalStorageBackend(NewMemoryStorage()).Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snapshot.CartLines)
	assert.NotNil(t, snapshot.SavedLines)
	assert.Empty(t, snapshot.CartLines)
}

func TestLocalStorageBackendLoadCorruptSlots(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(ctx, KeyCartItems, "{not json"))
	require.NoError(t, storage.Set(ctx, KeySavedItems, `[{"id":"p9","name":"Saved","price":2,"stock":1,"creator":{"id":"c"}}]`))

	snapshot, err := NewLocalStorageBackend(storage).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.CartLines)
	require.Len(t, snapshot.SavedLines, 1)
	assert.Equal(t, "p9", snapshot.SavedLines[0].ID)
}

func TestLocalStorageBackendNullSlot(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(ctx, KeyCartItems, "null"))

	snapshot, err := NewLocalStorageBackend(storage).Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snapshot.CartLines)
}

func TestLocalStorageBackendLoadNormalizesSlots(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(ctx, KeyCartItems,
		`[{"id":"p1","name":"Mug","price":10,"stock":3,"quantity":2},`+
			`{"id":"p1","name":"Mug","price":10,"stock":3,"quantity":2},`+
			`{"id":"p2","name":"Lamp","price":40,"stock":1,"quantity":9}]`))
	require.NoError(t, storage.Set(ctx, KeySavedItems,
		`[{"id":"p2","name":"Lamp","price":40,"stock":1},{"id":"p3","name":"Pen","price":1,"stock":5},`+
			`{"id":"p3","name":"Pen","price":1,"stock":5}]`))

	snapshot, err := NewLocalStorageBackend(storage).Load(ctx)
	require.NoError(t, err)

	require.Len(t, snapshot.CartLines, 2)
	assert.Equal(t, "p1", snapshot.CartLines[0].ID)
	assert.Equal(t, 3, snapshot.CartLines[0].Quantity)
	assert.Equal(t, 1, snapshot.CartLines[1].Quantity)
	require.Len(t, snapshot.SavedLines, 1)
	assert.Equal(t, "p3", snapshot.SavedLines[0].ID)

	e := NewEngine(NewLocalStorageBackend(storage), Options{Notifier: &Recorder{}})
	require.NoError(t, e.Bootstrap(ctx))
	assert.Equal(t, 3, e.Quantity("p1", ""))
	assert.Equal(t, 4, e.CartCount())
	assert.False(t, e.IsSaved("p2", ""))
}

func TestLocalStorageBackendClear(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	backend := NewLocalStorageBackend(storage)
	receipt, err := backend.Commit(ctx, snapshotOf(withQuantity(product("p1", 2, 1), 1)))
	require.NoError(t, err)
	assert.Zero(t, receipt.Version)
	assert.Equal(t, 1, receipt.Snapshot.CartLines[0].Quantity)

	raw, ok, err := storage.Get(ctx, KeyCartItems)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"quantity":1`)

	require.NoError(t, backend.Clear(ctx))
	_, ok, _ = storage.Get(ctx, KeySavedItems)
	assert.False(t, ok)
}

func TestPendingActionsResolveOnce(t *testing.T) {
	p := NewPendingActions()
	k1 := p.Register("first")
	k2 := p.Register("second")
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, 2, p.Len())

	msg, ok := p.Resolve(k1)
	assert.True(t, ok)
	assert.Equal(t, "first", msg)

	_, ok = p.Resolve(k1)
	assert.False(t, ok)

	assert.True(t, p.Discard(k2))
	assert.False(t, p.Discard(k2))
	assert.Equal(t, 0, p.Len())
}
