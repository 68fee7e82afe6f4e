package cartsync

import (
	"sync"

	"go.uber.org/zap"
)

// Level is the severity of a user-facing notification
type Level string

// Notification levels
const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// FailureMessage is shown whenever a sync fails
const FailureMessage = "Could not save your cart. Please try again."

// Notification is a message surfaced to the user
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier surfaces notifications to whatever UI consumes the engine
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a zap logger
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by the logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs n at a level matching its severity
func (ln *LogNotifier) Notify(n Notification) {
	switch n.Level {
	case LevelError:
		ln.logger.Error(n.Message)
	case LevelWarning:
		ln.logger.Warn(n.Message)
	default:
		ln.logger.Info(n.Message)
	}
}

// Recorder keeps every notification in order
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify appends n
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// Notifications returns a copy of everything recorded so far
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Reset drops all recorded notifications
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
