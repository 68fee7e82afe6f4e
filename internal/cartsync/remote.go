package cartsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cart-sync/internal/models"
	"cart-sync/internal/util"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Headers understood by the persistence API
const (
	HeaderUserID         = "X-User-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderCartVersion    = "X-Cart-Version"
)

// ErrBackendStatus is returned for non-2xx responses
var ErrBackendStatus = errors.New("unexpected status from cart api")

// StatusError carries the HTTP status of a failed call
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrBackendStatus, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrBackendStatus }

// RemoteConfig configures the HTTP backend
type RemoteConfig struct {
	BaseURL             string
	UserID              string
	Timeout             time.Duration
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// RemoteBackend talks to the persistence API for an authenticated user.
// Every commit transmits the whole snapshot (replace-all).
type RemoteBackend struct {
	baseURL string
	userID  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*apiResponse]
	logger  *zap.Logger

	mu      sync.RWMutex
	summary *models.ProfileSummary
}

// NewRemoteBackend creates an HTTP backend with an instrumented transport
// and a circuit breaker that trips on server-side failures only.
func NewRemoteBackend(cfg RemoteConfig) *RemoteBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:        "cart-api",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	return &RemoteBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		userID:  cfg.UserID,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		logger:  util.ComponentLogger("remote-backend"),
	}
}

// Name implements Backend
func (b *RemoteBackend) Name() string { return "remote" }

// Authoritative implements Backend
func (b *RemoteBackend) Authoritative() bool { return true }

// Load fetches the durable snapshot
func (b *RemoteBackend) Load(ctx context.Context) (models.Snapshot, error) {
	resp, err := b.do(ctx, http.MethodGet, "/api/v1/cart", nil, "")
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load cart: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(resp.body, &snapshot); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to decode cart: %w", err)
	}
	snapshot.CartLines = nonNilCart(snapshot.CartLines)
	snapshot.SavedLines = nonNilSaved(snapshot.SavedLines)
	return snapshot, nil
}

// Commit replaces the durable snapshot. The correlation key travels as
// the idempotency key so a retried request is not applied twice.
// The receipt carries the snapshot the server stored, which may differ
// from the one sent once the server has normalized it.
func (b *RemoteBackend) Commit(ctx context.Context, snapshot models.Snapshot) (Receipt, error) {
	sent := models.Snapshot{
		CartLines:  nonNilCart(snapshot.CartLines),
		SavedLines: nonNilSaved(snapshot.SavedLines),
	}
	payload, err := json.Marshal(sent)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	resp, err := b.do(ctx, http.MethodPut, "/api/v1/cart", payload, CorrelationKey(ctx))
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to commit cart: %w", err)
	}

	receipt := Receipt{Snapshot: sent}
	if len(bytes.TrimSpace(resp.body)) > 0 {
		var stored models.Snapshot
		if err := json.Unmarshal(resp.body, &stored); err != nil {
			return Receipt{}, fmt.Errorf("failed to decode stored cart: %w", err)
		}
		receipt.Snapshot = models.Snapshot{
			CartLines:  nonNilCart(stored.CartLines),
			SavedLines: nonNilSaved(stored.SavedLines),
		}
	}
	if raw := resp.header.Get(HeaderCartVersion); raw != "" {
		version, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			b.logger.Warn("Ignoring malformed cart version", zap.String("version", raw))
		} else {
			receipt.Version = version
		}
	}
	return receipt, nil
}

// Refresh re-fetches the profile summary derived from the cart
func (b *RemoteBackend) Refresh(ctx context.Context) error {
	resp, err := b.do(ctx, http.MethodGet, "/api/v1/profile/summary", nil, "")
	if err != nil {
		return fmt.Errorf("failed to refresh summary: %w", err)
	}

	var summary models.ProfileSummary
	if err := json.Unmarshal(resp.body, &summary); err != nil {
		return fmt.Errorf("failed to decode summary: %w", err)
	}

	b.mu.Lock()
	b.summary = &summary
	b.mu.Unlock()
	return nil
}

// Summary returns the last fetched profile summary, if any
func (b *RemoteBackend) Summary() (models.ProfileSummary, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.summary == nil {
		return models.ProfileSummary{}, false
	}
	return *b.summary, true
}

type apiResponse struct {
	body   []byte
	header http.Header
}

func (b *RemoteBackend) do(ctx context.Context, method, path string, payload []byte, idempotencyKey string) (*apiResponse, error) {
	return b.breaker.Execute(func() (*apiResponse, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set(HeaderUserID, b.userID)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idempotencyKey != "" {
			req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b.logger.Warn("Cart API call failed",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", resp.StatusCode))
			return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return &apiResponse{body: body, header: resp.Header}, nil
	})
}

type correlationKeyCtx struct{}

// WithCorrelationKey attaches a mutation's correlation key to ctx
func WithCorrelationKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, correlationKeyCtx{}, key)
}

// CorrelationKey returns the key attached by WithCorrelationKey
func CorrelationKey(ctx context.Context) string {
	key, _ := ctx.Value(correlationKeyCtx{}).(string)
	return key
}
