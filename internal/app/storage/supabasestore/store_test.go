package supabasestore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/supabase"
)

// fakeGateway records requests and serves canned responses per path+method.
type fakeGateway struct {
	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{handlers: make(map[string]http.HandlerFunc)}
}

func (f *fakeGateway) handle(method, path string, h http.HandlerFunc) {
	f.handlers[method+" "+path] = h
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
	f.mu.Unlock()

	if h, ok := f.handlers[r.Method+" "+r.URL.Path]; ok {
		h(w, r)
		return
	}
	http.Error(w, `{"message":"no handler"}`, http.StatusNotFound)
}

func (f *fakeGateway) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestStore(t *testing.T, gw *fakeGateway) *Store {
	t.Helper()
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	client, err := supabase.New(supabase.Config{URL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	return New(client, nil)
}

func TestGetProductNotFound(t *testing.T) {
	gw := newFakeGateway()
	gw.handle(http.MethodGet, "/rest/v1/products", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"not found"}`, http.StatusNotAcceptable)
	})
	s := newTestStore(t, gw)

	_, err := s.GetProduct(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestListUsablePrescriptionsQuery(t *testing.T) {
	gw := newFakeGateway()
	gw.handle(http.MethodGet, "/rest/v1/prescriptions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	s := newTestStore(t, gw)

	_, err := s.ListUsablePrescriptions(context.Background(), "user-1", mustTime(t, "2026-09-01T10:00:00Z"))
	require.NoError(t, err)

	reqs := gw.recorded()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Query, "user_id=eq.user-1")
	assert.Contains(t, reqs[0].Query, "status=eq.validated")
	assert.Contains(t, reqs[0].Query, "valid_until=gte.2026-09-01T10%3A00%3A00Z")
}

func TestCreateOrderWithItems(t *testing.T) {
	gw := newFakeGateway()
	gw.handle(http.MethodPost, "/rest/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.NotEmpty(t, payload["client_reference"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(order.Order{ID: "ord-1", UserID: "user-1", Status: order.StatusPending})
	})
	gw.handle(http.MethodPost, "/rest/v1/order_items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]order.Item{{ID: "item-1", OrderID: "ord-1", ProductID: "p1", Quantity: 2, UnitPrice: 3}})
	})
	s := newTestStore(t, gw)

	created, err := s.CreateOrderWithItems(context.Background(),
		order.Order{UserID: "user-1", TotalAmount: 6},
		[]order.Item{{ProductID: "p1", Quantity: 2, UnitPrice: 3}})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", created.ID)
	require.Len(t, created.Items, 1)
	assert.Equal(t, "item-1", created.Items[0].ID)
}

func TestCreateOrderRollsBackOnItemFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.handle(http.MethodPost, "/rest/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(order.Order{ID: "ord-1", UserID: "user-1"})
	})
	gw.handle(http.MethodPost, "/rest/v1/order_items", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"constraint violation"}`, http.StatusConflict)
	})
	gw.handle(http.MethodDelete, "/rest/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s := newTestStore(t, gw)

	_, err := s.CreateOrderWithItems(context.Background(),
		order.Order{UserID: "user-1"},
		[]order.Item{{ProductID: "p1", Quantity: 1, UnitPrice: 5}})
	require.Error(t, err)

	var deleted bool
	for _, req := range gw.recorded() {
		if req.Method == http.MethodDelete && req.Path == "/rest/v1/orders" {
			deleted = true
			assert.Contains(t, req.Query, "id=eq.ord-1")
		}
	}
	assert.True(t, deleted, "expected compensating delete of the order")
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}
