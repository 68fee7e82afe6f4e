package cartsync

import (
	"sync"

	"github.com/google/uuid"
)

// PendingActions correlates an optimistic mutation with the confirmation
// message shown once its sync succeeds. Each entry is consumed exactly once.
type PendingActions struct {
	mu      sync.Mutex
	actions map[string]string
}

// NewPendingActions creates an empty pending map
func NewPendingActions() *PendingActions {
	return &PendingActions{actions: make(map[string]string)}
}

// Register stores message under a fresh correlation key
func (p *PendingActions) Register(message string) string {
	key := uuid.New().String()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions[key] = message
	return key
}

// Resolve removes and returns the message for key
func (p *PendingActions) Resolve(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg, ok := p.actions[key]
	if ok {
		delete(p.actions, key)
	}
	return msg, ok
}

// Discard removes key without returning its message
func (p *PendingActions) Discard(key string) bool {
	_, ok := p.Resolve(key)
	return ok
}

// Len returns the number of unresolved actions
func (p *PendingActions) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.actions)
}
