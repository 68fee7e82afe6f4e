package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cart-sync/internal/cart"
	"cart-sync/internal/models"
	"cart-sync/internal/util"

	"go.uber.org/zap"
)

// ErrLoginMerge is returned when the merged cart could not be committed at login
var ErrLoginMerge = errors.New("failed to persist merged cart")

// MergeMessage confirms a guest cart folded into the account at login
const MergeMessage = "Your saved cart was merged into your account"

// MaxStockWarning is shown when an add hits the stock ceiling
const MaxStockWarning = "Maximum stock reached"

// warnings maps policy reasons to the text shown to the user
var warnings = map[string]string{
	cart.ReasonMaxStock: MaxStockWarning,
}

// Options configures an Engine
type Options struct {
	Notifier    Notifier
	SyncTimeout time.Duration
}

// Engine is the per-session cart: it applies mutations optimistically and
// hands every resulting snapshot to the synchronizer in the background.
// Mutation methods return the reconciliation signal and never fail.
type Engine struct {
	store    *cart.Store
	syncer   *Synchronizer
	pending  *PendingActions
	notifier Notifier
	logger   *zap.Logger

	inflight sync.WaitGroup
}

// NewEngine creates an empty session bound to backend
func NewEngine(backend Backend, opts Options) *Engine {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(util.ComponentLogger("notifications"))
	}

	store := cart.NewStore(models.Snapshot{})
	pending := NewPendingActions()

	return &Engine{
		store:    store,
		syncer:   NewSynchronizer(store, backend, pending, notifier, opts.SyncTimeout),
		pending:  pending,
		notifier: notifier,
		logger:   util.ComponentLogger("cart-engine"),
	}
}

// Bootstrap hydrates the session once from the backend and establishes
// the first confirmed snapshot.
func (e *Engine) Bootstrap(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "Engine.Bootstrap")
	defer span.End()

	backend := e.syncer.Backend()
	snapshot, err := backend.Load(ctx)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to hydrate cart from %s backend: %w", backend.Name(), err)
	}

	e.store.Replace(snapshot)
	e.syncer.Reset(backend, snapshot)

	e.logger.Info("Cart hydrated",
		zap.String("backend", backend.Name()),
		zap.Int("cart_lines", len(snapshot.CartLines)),
		zap.Int("saved_lines", len(snapshot.SavedLines)))
	return nil
}

// Login moves a guest session onto the remote backend. The remote cart is
// loaded, the guest cart merged into it, and the result committed when it
// differs from what the server already holds. Guest slots are cleared only
// after the merged cart is durable.
func (e *Engine) Login(ctx context.Context, remote Backend) error {
	ctx, span := util.StartSpan(ctx, "Engine.Login")
	defer span.End()

	e.Wait()

	previous := e.syncer.Backend()
	guest := e.store.Snapshot()

	server, err := remote.Load(ctx)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to load account cart: %w", err)
	}

	merged := cart.Merge(server, guest)
	e.syncer.Reset(remote, server)
	e.store.Replace(merged)

	if !merged.Equal(server) {
		key := e.pending.Register(MergeMessage)
		if state := e.syncer.Sync(ctx, merged, key); state != models.SyncStateConfirmed {
			util.RecordError(span, ErrLoginMerge)
			return ErrLoginMerge
		}
	}

	if local, ok := previous.(*LocalStorageBackend); ok {
		if err := local.Clear(ctx); err != nil {
			e.logger.Warn("Failed to clear guest cart", zap.Error(err))
		}
	}

	e.logger.Info("Guest cart merged",
		zap.Int("guest_lines", len(guest.CartLines)),
		zap.Int("server_lines", len(server.CartLines)),
		zap.Int("merged_lines", len(merged.CartLines)))
	return nil
}

// AddToCart adds quantity units of line, clamped to its stock
func (e *Engine) AddToCart(line models.CartLine, quantity int) cart.Signal {
	return e.mutate(cart.Add(line, quantity))
}

// RemoveFromCart deletes a cart line; absent lines are ignored
func (e *Engine) RemoveFromCart(productID, variantID string) cart.Signal {
	return e.mutate(cart.Remove(productID, variantID))
}

// UpdateQuantity sets a line's quantity; zero or less removes it
func (e *Engine) UpdateQuantity(productID, variantID string, quantity int) cart.Signal {
	return e.mutate(cart.UpdateQuantity(productID, variantID, quantity))
}

// ClearCart empties the cart list
func (e *Engine) ClearCart() cart.Signal {
	return e.mutate(cart.Clear())
}

// MoveToSaved moves a cart line to the saved list
func (e *Engine) MoveToSaved(productID, variantID string) cart.Signal {
	return e.mutate(cart.MoveToSaved(productID, variantID))
}

// MoveToCart moves a saved line into the cart
func (e *Engine) MoveToCart(saved models.SavedLine) cart.Signal {
	return e.mutate(cart.MoveToCart(saved))
}

// RemoveSaved deletes a saved line
func (e *Engine) RemoveSaved(productID, variantID string) cart.Signal {
	return e.mutate(cart.RemoveSaved(productID, variantID))
}

// mutate applies m to the store before any I/O and schedules the sync.
func (e *Engine) mutate(m cart.Mutation) cart.Signal {
	next, signal := e.store.Apply(m)
	util.CartMutationsTotal.WithLabelValues(string(m.Kind), signal.Kind.String()).Inc()

	switch signal.Kind {
	case cart.SignalRejected:
		e.notifier.Notify(Notification{Level: LevelWarning, Message: warningFor(signal.Message)})
		return signal
	case cart.SignalNoop:
		return signal
	}

	if signal.Clamped {
		e.notifier.Notify(Notification{Level: LevelWarning, Message: MaxStockWarning})
	}

	key := e.pending.Register(signal.Message)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.syncer.Sync(context.Background(), next, key)
	}()

	return signal
}

// Wait blocks until every scheduled sync has resolved
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Snapshot returns a copy of the current state
func (e *Engine) Snapshot() models.Snapshot { return e.store.Snapshot() }

// IsInCart reports whether the identity is in the cart
func (e *Engine) IsInCart(productID, variantID string) bool {
	return e.store.IsInCart(productID, variantID)
}

// IsSaved reports whether the identity is saved for later
func (e *Engine) IsSaved(productID, variantID string) bool {
	return e.store.IsSaved(productID, variantID)
}

// Quantity returns the cart quantity for the identity, or 0
func (e *Engine) Quantity(productID, variantID string) int {
	return e.store.Quantity(productID, variantID)
}

// CartCount sums every cart line quantity
func (e *Engine) CartCount() int { return e.store.CartCount() }

// CartTotal sums price * quantity over the cart
func (e *Engine) CartTotal() float64 { return e.store.CartTotal() }

// Backend returns the active backend
func (e *Engine) Backend() Backend { return e.syncer.Backend() }

// LastKnownGood returns the last confirmed snapshot
func (e *Engine) LastKnownGood() models.Snapshot { return e.syncer.LastKnownGood() }

// PendingCount returns the number of unresolved confirmations
func (e *Engine) PendingCount() int { return e.pending.Len() }

func warningFor(reason string) string {
	if text, ok := warnings[reason]; ok {
		return text
	}
	return reason
}
