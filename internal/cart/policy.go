package cart

import (
	"fmt"

	"cart-sync/internal/models"
)

// MutationKind names a cart operation
type MutationKind string

// Mutation kinds
const (
	KindAdd         MutationKind = "add"
	KindUpdate      MutationKind = "update_quantity"
	KindRemove      MutationKind = "remove"
	KindMoveToSaved MutationKind = "move_to_saved"
	KindMoveToCart  MutationKind = "move_to_cart"
	KindRemoveSaved MutationKind = "remove_saved"
	KindClear       MutationKind = "clear"
)

// Rejection and no-op reasons
const (
	ReasonMaxStock     = "maximum stock reached"
	ReasonAlreadySaved = "already saved"
	ReasonNotInCart    = "not in cart"
	ReasonNotSaved     = "not saved"
	ReasonEmpty        = "cart is empty"
	ReasonUnchanged    = "quantity unchanged"
)

// Mutation is a proposed change to a snapshot
type Mutation struct {
	Kind     MutationKind
	Identity models.Identity
	Line     models.CartLine
	Saved    models.SavedLine
	Quantity int
}

// Add proposes adding quantity units of line
func Add(line models.CartLine, quantity int) Mutation {
	return Mutation{Kind: KindAdd, Identity: line.Identity(), Line: line, Quantity: quantity}
}

// UpdateQuantity proposes setting the quantity of an existing line
func UpdateQuantity(productID, variantID string, quantity int) Mutation {
	return Mutation{Kind: KindUpdate, Identity: models.Identity{ProductID: productID, VariantID: variantID}, Quantity: quantity}
}

// Remove proposes deleting a cart line
func Remove(productID, variantID string) Mutation {
	return Mutation{Kind: KindRemove, Identity: models.Identity{ProductID: productID, VariantID: variantID}}
}

// MoveToSaved proposes moving a cart line to the saved list
func MoveToSaved(productID, variantID string) Mutation {
	return Mutation{Kind: KindMoveToSaved, Identity: models.Identity{ProductID: productID, VariantID: variantID}}
}

// MoveToCart proposes moving a saved line back into the cart
func MoveToCart(saved models.SavedLine) Mutation {
	return Mutation{Kind: KindMoveToCart, Identity: saved.Identity(), Saved: saved}
}

// RemoveSaved proposes deleting a saved line
func RemoveSaved(productID, variantID string) Mutation {
	return Mutation{Kind: KindRemoveSaved, Identity: models.Identity{ProductID: productID, VariantID: variantID}}
}

// Clear proposes emptying the cart list
func Clear() Mutation {
	return Mutation{Kind: KindClear}
}

// SignalKind classifies the outcome of a reconciliation
type SignalKind int

const (
	SignalNoop SignalKind = iota
	SignalApplied
	SignalRejected
)

func (k SignalKind) String() string {
	switch k {
	case SignalApplied:
		return "applied"
	case SignalRejected:
		return "rejected"
	default:
		return "noop"
	}
}

// Signal describes what a mutation did.
// Clamped is set on applied changes whose quantity was capped by stock.
type Signal struct {
	Kind    SignalKind
	Message string
	Clamped bool
}

func applied(msg string) Signal  { return Signal{Kind: SignalApplied, Message: msg} }
func rejected(msg string) Signal { return Signal{Kind: SignalRejected, Message: msg} }
func noop(msg string) Signal     { return Signal{Kind: SignalNoop, Message: msg} }

// Reconcile computes the effect of m on s without side effects.
// The input snapshot is never modified.
func Reconcile(s models.Snapshot, m Mutation) (models.Snapshot, Signal) {
	next := s.Clone()

	switch m.Kind {
	case KindAdd:
		return reconcileAdd(next, m)
	case KindUpdate:
		return reconcileUpdate(next, m)
	case KindRemove:
		return reconcileRemove(next, m.Identity)
	case KindMoveToSaved:
		return reconcileMoveToSaved(next, m.Identity)
	case KindMoveToCart:
		return reconcileMoveToCart(next, m.Saved)
	case KindRemoveSaved:
		idx := findSaved(next.SavedLines, m.Identity)
		if idx < 0 {
			return s, noop(ReasonNotSaved)
		}
		name := next.SavedLines[idx].Name
		next.SavedLines = append(next.SavedLines[:idx], next.SavedLines[idx+1:]...)
		return next, applied(fmt.Sprintf("Removed %s from saved items", name))
	case KindClear:
		if len(next.CartLines) == 0 {
			return s, noop(ReasonEmpty)
		}
		n := len(next.CartLines)
		next.CartLines = []models.CartLine{}
		return next, applied(fmt.Sprintf("Cleared %d %s from cart", n, plural(n, "item", "items")))
	}

	return s, noop(fmt.Sprintf("unknown mutation %q", m.Kind))
}

func reconcileAdd(next models.Snapshot, m Mutation) (models.Snapshot, Signal) {
	requested := m.Quantity
	if requested < 1 {
		requested = 1
	}

	idx := findCart(next.CartLines, m.Identity)
	if idx < 0 {
		line := m.Line
		line.Quantity = min(requested, max(line.Stock, 0))
		next.CartLines = append(next.CartLines, line)
		sig := applied(fmt.Sprintf("Added %s to cart", line.Name))
		if line.Quantity < requested {
			sig.Clamped = true
			sig.Message = fmt.Sprintf("Added %d of %s to cart (%s)", line.Quantity, line.Name, ReasonMaxStock)
		}
		return next, sig
	}

	existing := &next.CartLines[idx]
	increase := min(requested, existing.Stock-existing.Quantity)
	if increase <= 0 {
		return next, rejected(ReasonMaxStock)
	}
	existing.Quantity += increase
	sig := applied(fmt.Sprintf("Updated %s quantity to %d", existing.Name, existing.Quantity))
	if increase < requested {
		sig.Clamped = true
		sig.Message = fmt.Sprintf("Updated %s quantity to %d (%s)", existing.Name, existing.Quantity, ReasonMaxStock)
	}
	return next, sig
}

func reconcileUpdate(next models.Snapshot, m Mutation) (models.Snapshot, Signal) {
	if m.Quantity <= 0 {
		return reconcileRemove(next, m.Identity)
	}

	idx := findCart(next.CartLines, m.Identity)
	if idx < 0 {
		return next, noop(ReasonNotInCart)
	}

	line := &next.CartLines[idx]
	clamped := min(m.Quantity, line.Stock)
	if clamped == line.Quantity {
		return next, noop(ReasonUnchanged)
	}
	if clamped <= 0 {
		return reconcileRemove(next, m.Identity)
	}
	line.Quantity = clamped
	sig := applied(fmt.Sprintf("Updated %s quantity to %d", line.Name, clamped))
	if clamped != m.Quantity {
		sig.Clamped = true
		sig.Message = fmt.Sprintf("Updated %s quantity to %d (%s)", line.Name, clamped, ReasonMaxStock)
	}
	return next, sig
}

func reconcileRemove(next models.Snapshot, id models.Identity) (models.Snapshot, Signal) {
	idx := findCart(next.CartLines, id)
	if idx < 0 {
		return next, noop(ReasonNotInCart)
	}
	name := next.CartLines[idx].Name
	next.CartLines = append(next.CartLines[:idx], next.CartLines[idx+1:]...)
	return next, applied(fmt.Sprintf("Removed %s from cart", name))
}

// reconcileMoveToSaved leaves the cart untouched when the identity is
// already saved, so a duplicate move never drops the cart line.
func reconcileMoveToSaved(next models.Snapshot, id models.Identity) (models.Snapshot, Signal) {
	idx := findCart(next.CartLines, id)
	if idx < 0 {
		return next, noop(ReasonNotInCart)
	}
	if findSaved(next.SavedLines, id) >= 0 {
		return next, noop(ReasonAlreadySaved)
	}

	line := next.CartLines[idx]
	next.CartLines = append(next.CartLines[:idx], next.CartLines[idx+1:]...)
	next.SavedLines = append(next.SavedLines, line.Saved())
	return next, applied(fmt.Sprintf("Saved %s for later", line.Name))
}

func reconcileMoveToCart(next models.Snapshot, saved models.SavedLine) (models.Snapshot, Signal) {
	id := saved.Identity()
	removedSaved := false
	if idx := findSaved(next.SavedLines, id); idx >= 0 {
		saved = next.SavedLines[idx]
		next.SavedLines = append(next.SavedLines[:idx], next.SavedLines[idx+1:]...)
		removedSaved = true
	}

	if idx := findCart(next.CartLines, id); idx >= 0 {
		line := &next.CartLines[idx]
		merged := min(line.Quantity+1, line.Stock)
		if merged <= line.Quantity && !removedSaved {
			return next, noop(ReasonMaxStock)
		}
		if merged > line.Quantity {
			line.Quantity = merged
		}
		return next, applied(fmt.Sprintf("Moved %s to cart", line.Name))
	}

	next.CartLines = append(next.CartLines, saved.InCart(min(1, max(saved.Stock, 0))))
	return next, applied(fmt.Sprintf("Moved %s to cart", saved.Name))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
