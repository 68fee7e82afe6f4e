package cart

import (
	"sync"

	"cart-sync/internal/models"
)

// Store holds the session's current snapshot in memory.
// It is written only through Apply (optimistic mutations), Replace (hydration,
// rollback) and CompareAndReplace (adopting the server's confirmed state).
type Store struct {
	mu       sync.RWMutex
	snapshot models.Snapshot
}

// NewStore creates a store hydrated with the given snapshot
func NewStore(initial models.Snapshot) *Store {
	return &Store{snapshot: initial.Clone()}
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Replace overwrites the current state in full
func (s *Store) Replace(snapshot models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot.Clone()
}

// CompareAndReplace swaps in snapshot only while the current state still
// equals one of expected. It reports whether the swap happened.
func (s *Store) CompareAndReplace(snapshot models.Snapshot, expected ...models.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range expected {
		if s.snapshot.Equal(e) {
			s.snapshot = snapshot.Clone()
			return true
		}
	}
	return false
}

// Apply reconciles the mutation against the current state and, when the
// policy applied it, swaps in the next state before returning.
// The read and the write happen under one lock so rapid calls compose.
func (s *Store) Apply(m Mutation) (models.Snapshot, Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, signal := Reconcile(s.snapshot, m)
	if signal.Kind != SignalApplied {
		return s.snapshot.Clone(), signal
	}
	s.snapshot = next
	return next.Clone(), signal
}

// IsInCart reports whether a cart line with the identity exists
func (s *Store) IsInCart(productID, variantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findCart(s.snapshot.CartLines, models.Identity{ProductID: productID, VariantID: variantID}) >= 0
}

// IsSaved reports whether a saved line with the identity exists
func (s *Store) IsSaved(productID, variantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findSaved(s.snapshot.SavedLines, models.Identity{ProductID: productID, VariantID: variantID}) >= 0
}

// Quantity returns the quantity of the matching cart line, or 0
func (s *Store) Quantity(productID, variantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := findCart(s.snapshot.CartLines, models.Identity{ProductID: productID, VariantID: variantID})
	if idx < 0 {
		return 0
	}
	return s.snapshot.CartLines[idx].Quantity
}

// CartCount sums all cart line quantities
func (s *Store) CartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Count(s.snapshot)
}

// CartTotal sums price * quantity over all cart lines
func (s *Store) CartTotal() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Total(s.snapshot)
}

// Count sums the cart quantities of a snapshot
func Count(s models.Snapshot) int {
	n := 0
	for _, l := range s.CartLines {
		n += l.Quantity
	}
	return n
}

// Total sums price * quantity of a snapshot
func Total(s models.Snapshot) float64 {
	var total float64
	for _, l := range s.CartLines {
		total += l.Price * float64(l.Quantity)
	}
	return total
}

func findCart(lines []models.CartLine, id models.Identity) int {
	for i := range lines {
		if lines[i].Identity() == id {
			return i
		}
	}
	return -1
}

func findSaved(lines []models.SavedLine, id models.Identity) int {
	for i := range lines {
		if lines[i].Identity() == id {
			return i
		}
	}
	return -1
}
