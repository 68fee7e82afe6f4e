package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cart-sync/internal/cart"
	"cart-sync/internal/cartsync"
	"cart-sync/internal/models"
	"cart-sync/internal/redisclient"
)

var errNoSession = errors.New("one of --user or --guest is required")

// session is one hydrated engine plus the notifications it produced
type session struct {
	engine   *cartsync.Engine
	recorder *cartsync.Recorder
	remote   *cartsync.RemoteBackend
	closers  []func() error
}

func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	s := &session{recorder: &cartsync.Recorder{}}

	var backend cartsync.Backend
	switch {
	case opts.User != "":
		s.remote = newRemote(opts)
		backend = s.remote
	case opts.Guest != "":
		local, closer, err := newGuestBackend(opts)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, closer)
		backend = local
	default:
		return nil, errNoSession
	}

	s.engine = cartsync.NewEngine(backend, cartsync.Options{
		Notifier:    s.recorder,
		SyncTimeout: opts.SyncTimeout,
	})
	if err := s.engine.Bootstrap(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func newRemote(opts *RootOptions) *cartsync.RemoteBackend {
	return cartsync.NewRemoteBackend(cartsync.RemoteConfig{
		BaseURL: opts.Server,
		UserID:  opts.User,
		Timeout: opts.SyncTimeout,
	})
}

func newGuestBackend(opts *RootOptions) (*cartsync.LocalStorageBackend, func() error, error) {
	client, err := redisclient.NewClient(opts.RedisAddr, "", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open guest storage: %w", err)
	}
	storage := client.GuestStorage(opts.Guest, opts.GuestTTL)
	return cartsync.NewLocalStorageBackend(storage), client.Close, nil
}

func (s *session) close() {
	for _, c := range s.closers {
		_ = c()
	}
}

// report is the machine readable outcome of one command
type report struct {
	Signal        string                  `json:"signal,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	Notifications []cartsync.Notification `json:"notifications"`
	Snapshot      models.Snapshot         `json:"snapshot"`
	CartCount     int                     `json:"cartCount"`
	CartTotal     float64                 `json:"cartTotal"`
	Summary       *models.ProfileSummary  `json:"summary,omitempty"`
}

// finish waits for persistence and writes the outcome
func (s *session) finish(w io.Writer, format string, signal *cart.Signal) error {
	defer s.close()
	s.engine.Wait()

	r := report{
		Notifications: s.recorder.Notifications(),
		Snapshot:      s.engine.Snapshot(),
		CartCount:     s.engine.CartCount(),
		CartTotal:     s.engine.CartTotal(),
	}
	if signal != nil {
		r.Signal = signal.Kind.String()
		r.Reason = signal.Message
	}
	if s.remote != nil {
		if summary, ok := s.remote.Summary(); ok {
			r.Summary = &summary
		}
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	writeText(w, r)
	return nil
}

func writeText(w io.Writer, r report) {
	for _, n := range r.Notifications {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	}
	if r.Signal == cart.SignalNoop.String() && r.Reason != "" {
		fmt.Fprintf(w, "(no change: %s)\n", r.Reason)
	}

	fmt.Fprintf(w, "Cart (%d items, total %.2f):\n", r.CartCount, r.CartTotal)
	for _, l := range r.Snapshot.CartLines {
		fmt.Fprintf(w, "  %-12s %-24s x%-3d @ %.2f (stock %d)\n", lineID(l.ID, l.VariantID), l.Name, l.Quantity, l.Price, l.Stock)
	}
	if len(r.Snapshot.SavedLines) > 0 {
		fmt.Fprintln(w, "Saved for later:")
		for _, l := range r.Snapshot.SavedLines {
			fmt.Fprintf(w, "  %-12s %-24s @ %.2f\n", lineID(l.ID, l.VariantID), l.Name, l.Price)
		}
	}
}

func lineID(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + "/" + variantID
}
