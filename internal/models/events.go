package models

import "time"

// Event types
const (
	EventTypeCartUpdated = "CART_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CartUpdatedEvent published after a snapshot replace commits
type CartUpdatedEvent struct {
	BaseEvent
	UserID     string  `json:"user_id"`
	Version    int64   `json:"version"`
	CartCount  int     `json:"cart_count"`
	CartLines  int     `json:"cart_lines"`
	SavedCount int     `json:"saved_count"`
	CartTotal  float64 `json:"cart_total"`
}

// Summary converts the event into the profile summary it describes
func (e CartUpdatedEvent) Summary() ProfileSummary {
	return ProfileSummary{
		UserID:     e.UserID,
		CartCount:  e.CartCount,
		CartLines:  e.CartLines,
		SavedCount: e.SavedCount,
		CartTotal:  e.CartTotal,
		UpdatedAt:  e.Timestamp,
	}
}
