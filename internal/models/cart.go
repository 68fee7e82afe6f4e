package models

import "time"

// Creator is the seller that owns a listing
type Creator struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsVerified bool   `json:"isVerified"`
}

// Identity distinguishes one purchasable line from another.
// An empty VariantID means the base product.
type Identity struct {
	ProductID string
	VariantID string
}

// CartLine is a purchasable unit in the active cart
type CartLine struct {
	ID          string  `json:"id" binding:"required"`
	Name        string  `json:"name"`
	Price       float64 `json:"price" binding:"min=0"`
	Image       string  `json:"image"`
	Slug        string  `json:"slug"`
	Stock       int     `json:"stock" binding:"min=0"`
	Creator     Creator `json:"creator"`
	Quantity    int     `json:"quantity" binding:"min=0"`
	VariantID   string  `json:"variantId,omitempty"`
	VariantName string  `json:"variantName,omitempty"`
}

// Identity returns the line identity
func (l CartLine) Identity() Identity {
	return Identity{ProductID: l.ID, VariantID: l.VariantID}
}

// Saved strips the quantity commitment
func (l CartLine) Saved() SavedLine {
	return SavedLine{
		ID:          l.ID,
		Name:        l.Name,
		Price:       l.Price,
		Image:       l.Image,
		Slug:        l.Slug,
		Stock:       l.Stock,
		Creator:     l.Creator,
		VariantID:   l.VariantID,
		VariantName: l.VariantName,
	}
}

// SavedLine is a saved-for-later item; it carries no quantity
type SavedLine struct {
	ID          string  `json:"id" binding:"required"`
	Name        string  `json:"name"`
	Price       float64 `json:"price" binding:"min=0"`
	Image       string  `json:"image"`
	Slug        string  `json:"slug"`
	Stock       int     `json:"stock" binding:"min=0"`
	Creator     Creator `json:"creator"`
	VariantID   string  `json:"variantId,omitempty"`
	VariantName string  `json:"variantName,omitempty"`
}

// Identity returns the line identity
func (l SavedLine) Identity() Identity {
	return Identity{ProductID: l.ID, VariantID: l.VariantID}
}

// InCart builds a cart line with the given quantity
func (l SavedLine) InCart(quantity int) CartLine {
	return CartLine{
		ID:          l.ID,
		Name:        l.Name,
		Price:       l.Price,
		Image:       l.Image,
		Slug:        l.Slug,
		Stock:       l.Stock,
		Creator:     l.Creator,
		Quantity:    quantity,
		VariantID:   l.VariantID,
		VariantName: l.VariantName,
	}
}

// Snapshot is the full cart state at an instant; the unit of persistence and rollback
type Snapshot struct {
	CartLines  []CartLine  `json:"cartLines" binding:"dive"`
	SavedLines []SavedLine `json:"savedLines" binding:"dive"`
}

// Clone deep-copies both lists
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		CartLines:  make([]CartLine, len(s.CartLines)),
		SavedLines: make([]SavedLine, len(s.SavedLines)),
	}
	copy(out.CartLines, s.CartLines)
	copy(out.SavedLines, s.SavedLines)
	return out
}

// Equal reports whether both snapshots hold the same lines in the same order
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.CartLines) != len(other.CartLines) || len(s.SavedLines) != len(other.SavedLines) {
		return false
	}
	for i := range s.CartLines {
		if s.CartLines[i] != other.CartLines[i] {
			return false
		}
	}
	for i := range s.SavedLines {
		if s.SavedLines[i] != other.SavedLines[i] {
			return false
		}
	}
	return true
}

// ProfileSummary holds aggregate counts derived from a user's cart
type ProfileSummary struct {
	UserID     string    `json:"userId"`
	CartCount  int       `json:"cartCount"`
	CartLines  int       `json:"cartLines"`
	SavedCount int       `json:"savedCount"`
	CartTotal  float64   `json:"cartTotal"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SummaryOf computes the aggregate counts of a snapshot
func SummaryOf(userID string, s Snapshot) ProfileSummary {
	summary := ProfileSummary{
		UserID:     userID,
		CartLines:  len(s.CartLines),
		SavedCount: len(s.SavedLines),
		UpdatedAt:  time.Now(),
	}
	for _, l := range s.CartLines {
		summary.CartCount += l.Quantity
		summary.CartTotal += l.Price * float64(l.Quantity)
	}
	return summary
}

// SyncState is the lifecycle of a single persistence attempt
type SyncState string

// Sync states
const (
	SyncStatePending    SyncState = "pending"
	SyncStateConfirmed  SyncState = "confirmed"
	SyncStateRolledBack SyncState = "rolled_back"
	SyncStateFailed     SyncState = "failed"
)
