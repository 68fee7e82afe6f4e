package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cart-sync/internal/cartsync"
	"cart-sync/internal/models"
	"cart-sync/internal/redisclient"
	"cart-sync/internal/service"
	"cart-sync/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubService struct {
	snapshot models.Snapshot
	err      error
	lastKey  string
	lastUser string
}

func (s *stubService) GetCart(_ context.Context, userID string) (models.Snapshot, error) {
	s.lastUser = userID
	return s.snapshot, s.err
}

func (s *stubService) ReplaceCart(_ context.Context, userID string, snapshot models.Snapshot, key string) (*service.ReplaceResult, error) {
	s.lastUser = userID
	s.lastKey = key
	if s.err != nil {
		return nil, s.err
	}
	s.snapshot = snapshot
	return &service.ReplaceResult{Snapshot: snapshot, Version: 7}, nil
}

func (s *stubService) GetSummary(_ context.Context, userID string) (models.ProfileSummary, error) {
	return models.SummaryOf(userID, s.snapshot), s.err
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter(svc CartService, deps map[string]Pinger) *gin.Engine {
	router := gin.New()
	NewHandler(svc, deps).SetupRoutes(router)
	return router
}

func do(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCartRoutesRequireUser(t *testing.T) {
	router := newRouter(&stubService{}, nil)

	w := do(router, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetCart(t *testing.T) {
	svc := &stubService{snapshot: models.Snapshot{
		CartLines:  []models.CartLine{{ID: "p1", Name: "Mug", Price: 10, Stock: 2, Quantity: 1}},
		SavedLines: []models.SavedLine{},
	}}
	router := newRouter(svc, nil)

	w := do(router, http.MethodGet, "/api/v1/cart", "", map[string]string{cartsync.HeaderUserID: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", svc.lastUser)

	var got models.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got.CartLines, 1)
}

func TestReplaceCartPassesIdempotencyKey(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc, nil)

	body := `{"cartLines":[{"id":"p1","name":"Mug","price":10,"stock":2,"quantity":1}],"savedLines":[]}`
	w := do(router, http.MethodPut, "/api/v1/cart", body, map[string]string{
		cartsync.HeaderUserID:         "u1",
		cartsync.HeaderIdempotencyKey: "abc",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", svc.lastKey)
	assert.Equal(t, "7", w.Header().Get(cartsync.HeaderCartVersion))
	assert.Len(t, svc.snapshot.CartLines, 1)
}

func TestReplaceCartRejectsInvalidBody(t *testing.T) {
	router := newRouter(&stubService{}, nil)
	headers := map[string]string{cartsync.HeaderUserID: "u1"}

	w := do(router, http.MethodPut, "/api/v1/cart", "{", headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPut, "/api/v1/cart", `{"cartLines":[{"name":"no id","stock":1,"quantity":1}]}`, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPut, "/api/v1/cart", `{"cartLines":[{"id":"p1","stock":-1,"quantity":1}]}`, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplaceCartConflict(t *testing.T) {
	router := newRouter(&stubService{err: service.ErrCartLocked}, nil)

	w := do(router, http.MethodPut, "/api/v1/cart", `{"cartLines":[],"savedLines":[]}`,
		map[string]string{cartsync.HeaderUserID: "u1"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetCartFailure(t *testing.T) {
	router := newRouter(&stubService{err: errors.New("db down")}, nil)

	w := do(router, http.MethodGet, "/api/v1/cart", "", map[string]string{cartsync.HeaderUserID: "u1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReadiness(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	broken := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	router := newRouter(&stubService{}, map[string]Pinger{"postgres": healthy, "redis": healthy})
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ready", "", nil).Code)

	router = newRouter(&stubService{}, map[string]Pinger{"postgres": healthy, "redis": broken})
	w := do(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
}

func TestHealthAndMetrics(t *testing.T) {
	router := newRouter(&stubService{}, nil)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "", nil).Code)
	w := do(router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

// memoryStore is an in-process SnapshotStore for end-to-end tests
type memoryStore struct {
	mu         sync.Mutex
	snapshots  map[string]models.Snapshot
	versions   map[string]int64
	writeDelay time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snapshots: map[string]models.Snapshot{}, versions: map[string]int64{}}
}

func (m *memoryStore) GetSnapshot(_ context.Context, userID string) (models.Snapshot, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[userID]
	if !ok {
		return models.Snapshot{}, 0, store.ErrCartNotFound
	}
	return s.Clone(), m.versions[userID], nil
}

func (m *memoryStore) ReplaceSnapshotTx(_ context.Context, userID string, s models.Snapshot) (int64, error) {
	if m.writeDelay > 0 {
		time.Sleep(m.writeDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[userID]++
	m.snapshots[userID] = s.Clone()
	return m.versions[userID], nil
}

func (m *memoryStore) stored(userID string) models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[userID].Clone()
}

func (m *memoryStore) version(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[userID]
}

type discardPublisher struct{}

func (discardPublisher) PublishCartUpdated(context.Context, *models.CartUpdatedEvent) error { return nil }

// setupSession serves st through the real service and router and returns
// a bootstrapped client session for user u1.
func setupSession(t *testing.T, st *memoryStore) (*service.CartService, *cartsync.RemoteBackend, *cartsync.Engine, *cartsync.Recorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	svc := service.NewCartService(
		st,
		redisclient.Wrap(rdb),
		discardPublisher{},
		service.Options{CacheTTL: time.Minute, IdempotencyTTL: time.Hour},
	)
	server := httptest.NewServer(newRouter(svc, nil))
	t.Cleanup(server.Close)

	remote := cartsync.NewRemoteBackend(cartsync.RemoteConfig{
		BaseURL: server.URL,
		UserID:  "u1",
		Timeout: 2 * time.Second,
	})
	recorder := &cartsync.Recorder{}
	engine := cartsync.NewEngine(remote, cartsync.Options{Notifier: recorder})
	require.NoError(t, engine.Bootstrap(context.Background()))
	return svc, remote, engine, recorder
}

func TestEngineAgainstServer(t *testing.T) {
	svc, remote, engine, recorder := setupSession(t, newMemoryStore())
	ctx := context.Background()

	line := models.CartLine{ID: "p1", Name: "Mug", Price: 10, Stock: 3}
	engine.AddToCart(line, 2)
	engine.Wait()
	engine.MoveToSaved("p1", "")
	engine.Wait()

	stored, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, stored.CartLines)
	require.Len(t, stored.SavedLines, 1)
	assert.Equal(t, "p1", stored.SavedLines[0].ID)

	summary, ok := remote.Summary()
	require.True(t, ok)
	assert.Equal(t, 1, summary.SavedCount)

	notes := recorder.Notifications()
	require.Len(t, notes, 2)
	for _, n := range notes {
		assert.Equal(t, cartsync.LevelSuccess, n.Level)
	}
}

func TestEngineOverlappingSyncsBothSucceed(t *testing.T) {
	st := newMemoryStore()
	st.writeDelay = 50 * time.Millisecond
	_, _, engine, recorder := setupSession(t, st)

	engine.AddToCart(models.CartLine{ID: "p1", Name: "Mug", Price: 10, Stock: 3}, 1)
	engine.AddToCart(models.CartLine{ID: "p2", Name: "Lamp", Price: 40, Stock: 1}, 1)
	engine.Wait()

	notes := recorder.Notifications()
	require.Len(t, notes, 2)
	for _, n := range notes {
		assert.Equal(t, cartsync.LevelSuccess, n.Level)
	}

	stored := st.stored("u1")
	assert.True(t, engine.Snapshot().Equal(stored))
	assert.True(t, engine.LastKnownGood().Equal(stored))
	assert.Equal(t, int64(2), st.version("u1"))
}

func TestEngineAdoptsServerCanonicalCart(t *testing.T) {
	st := newMemoryStore()
	mug := models.CartLine{ID: "p1", Name: "Mug", Price: 10, Stock: 5, Quantity: 1}
	st.snapshots["u1"] = models.Snapshot{CartLines: []models.CartLine{mug, mug}, SavedLines: []models.SavedLine{}}
	st.versions["u1"] = 1

	_, _, engine, recorder := setupSession(t, st)
	require.Len(t, engine.Snapshot().CartLines, 2)

	engine.AddToCart(models.CartLine{ID: "p2", Name: "Lamp", Price: 40, Stock: 1}, 1)
	engine.Wait()

	stored := st.stored("u1")
	require.Len(t, stored.CartLines, 2)
	assert.Equal(t, 2, stored.CartLines[0].Quantity)
	assert.True(t, engine.Snapshot().Equal(stored))
	assert.True(t, engine.LastKnownGood().Equal(stored))
	assert.Equal(t, 3, engine.CartCount())
	assert.Equal(t, []cartsync.Notification{{Level: cartsync.LevelSuccess, Message: "Added Lamp to cart"}}, recorder.Notifications())
}
