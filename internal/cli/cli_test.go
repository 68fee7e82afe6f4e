package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cart-sync/internal/cart"
	"cart-sync/internal/cartsync"
	"cart-sync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cartServer is a minimal cart API keyed by user
type cartServer struct {
	mu    sync.Mutex
	carts map[string]models.Snapshot
}

func (s *cartServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := r.Header.Get(cartsync.HeaderUserID)
	switch {
	case r.URL.Path == "/api/v1/cart" && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(s.carts[user])
	case r.URL.Path == "/api/v1/cart" && r.Method == http.MethodPut:
		var snapshot models.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.carts[user] = snapshot
		_ = json.NewEncoder(w).Encode(snapshot)
	case r.URL.Path == "/api/v1/profile/summary":
		_ = json.NewEncoder(w).Encode(models.SummaryOf(user, s.carts[user]))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *cartServer) cart(user string) models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[user].Clone()
}

func execute(t *testing.T, args ...string) (report, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--format", "json"))

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		return report{}, err
	}
	var r report
	require.NoError(t, json.Unmarshal(out.Bytes(), &r), out.String())
	return r, nil
}

func setupServer(t *testing.T) (*cartServer, string) {
	t.Helper()
	api := &cartServer{carts: map[string]models.Snapshot{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv.URL
}

func TestAddAndShowForUser(t *testing.T) {
	api, url := setupServer(t)

	r, err := execute(t, "--server", url, "--user", "u1",
		"add", "p1", "--name", "Mug", "--price", "12.5", "--stock", "4", "--qty", "2")
	require.NoError(t, err)
	assert.Equal(t, "applied", r.Signal)
	require.Len(t, r.Notifications, 1)
	assert.Equal(t, cartsync.LevelSuccess, r.Notifications[0].Level)
	assert.Equal(t, 2, r.CartCount)
	require.NotNil(t, r.Summary)
	assert.Equal(t, 2, r.Summary.CartCount)

	stored := api.cart("u1")
	require.Len(t, stored.CartLines, 1)
	assert.Equal(t, 2, stored.CartLines[0].Quantity)

	r, err = execute(t, "--server", url, "--user", "u1", "show")
	require.NoError(t, err)
	assert.Empty(t, r.Signal)
	assert.Equal(t, 25.0, r.CartTotal)
}

func TestAddBeyondStockWarns(t *testing.T) {
	_, url := setupServer(t)

	r, err := execute(t, "--server", url, "--user", "u1",
		"add", "p1", "--name", "Mug", "--stock", "1", "--qty", "5")
	require.NoError(t, err)
	assert.Equal(t, 1, r.CartCount)

	levels := make([]cartsync.Level, 0, len(r.Notifications))
	for _, n := range r.Notifications {
		levels = append(levels, n.Level)
	}
	assert.Contains(t, levels, cartsync.LevelWarning)
}

func TestSaveAndUnsave(t *testing.T) {
	api, url := setupServer(t)
	base := []string{"--server", url, "--user", "u1"}

	_, err := execute(t, append(base, "add", "p1", "--name", "Mug", "--stock", "3")...)
	require.NoError(t, err)

	r, err := execute(t, append(base, "save", "p1")...)
	require.NoError(t, err)
	assert.Equal(t, "applied", r.Signal)
	assert.Empty(t, api.cart("u1").CartLines)
	assert.Len(t, api.cart("u1").SavedLines, 1)

	r, err = execute(t, append(base, "unsave", "p1")...)
	require.NoError(t, err)
	assert.Equal(t, "applied", r.Signal)
	require.Len(t, api.cart("u1").CartLines, 1)
	assert.Equal(t, "Mug", api.cart("u1").CartLines[0].Name)
}

func TestUnsaveUnknownItemChangesNothing(t *testing.T) {
	api, url := setupServer(t)

	r, err := execute(t, "--server", url, "--user", "u1", "unsave", "p9")
	require.NoError(t, err)
	assert.Equal(t, "noop", r.Signal)
	assert.Equal(t, cart.ReasonNotSaved, r.Reason)
	assert.Empty(t, r.Notifications)
	assert.Empty(t, r.Snapshot.CartLines)
	assert.Empty(t, api.cart("u1").CartLines)
}

func TestUpdateRejectsBadQuantity(t *testing.T) {
	_, url := setupServer(t)

	_, err := execute(t, "--server", url, "--user", "u1", "update", "p1", "many")
	assert.ErrorContains(t, err, "invalid quantity")
}

func TestRequiresSession(t *testing.T) {
	_, err := execute(t, "show")
	assert.ErrorIs(t, err, errNoSession)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "yaml", "show"})
	cmd.SetOut(&bytes.Buffer{})
	assert.ErrorContains(t, cmd.Execute(), "invalid format")
}

func TestGuestCartThenLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	api, url := setupServer(t)
	api.carts["u1"] = models.Snapshot{
		CartLines:  []models.CartLine{{ID: "p1", Name: "Mug", Price: 10, Stock: 5, Quantity: 1}},
		SavedLines: []models.SavedLine{},
	}
	guest := []string{"--redis", mr.Addr(), "--guest", "g1", "--guest-ttl", time.Hour.String()}

	r, err := execute(t, append(guest, "add", "p1", "--name", "Mug", "--price", "10", "--stock", "5", "--qty", "2")...)
	require.NoError(t, err)
	assert.Equal(t, 2, r.CartCount)
	assert.True(t, mr.Exists("guest:g1:cart"))

	r, err = execute(t, append(guest, "--server", url, "--user", "u1", "login")...)
	require.NoError(t, err)
	assert.Equal(t, 3, r.CartCount)
	require.Len(t, api.cart("u1").CartLines, 1)
	assert.Equal(t, 3, api.cart("u1").CartLines[0].Quantity)

	// guest slots are gone after a successful merge
	r, err = execute(t, append(guest, "show")...)
	require.NoError(t, err)
	assert.Empty(t, r.Snapshot.CartLines)
}
