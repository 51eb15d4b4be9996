package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/session"
	"github.com/pharmaverte/storefront/internal/app/storage/memory"
	"github.com/pharmaverte/storefront/supabase"
)

func newService(t *testing.T) (*Service, *memory.Store, *session.Store) {
	t.Helper()
	store := memory.New()
	sess := session.NewStore()
	svc := New(Config{Catalog: store, Favorites: store, Searches: store, Session: sess})
	return svc, store, sess
}

func TestSearchRecordsHistoryWhenSignedIn(t *testing.T) {
	ctx := context.Background()
	svc, store, sess := newService(t)

	_, err := store.CreateProduct(ctx, catalog.Product{Name: "Aspirin"})
	require.NoError(t, err)

	// Signed out: no history.
	_, err = svc.Search(ctx, "aspirin")
	require.NoError(t, err)

	sess.SetUser(&supabase.User{ID: "user-1"})
	results, err := svc.Search(ctx, "  aspirin ")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	recent, err := svc.RecentSearches(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"aspirin"}, recent)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Search(context.Background(), "   ")
	assert.Error(t, err)
}

func TestToggleFavorite(t *testing.T) {
	ctx := context.Background()
	svc, _, sess := newService(t)

	_, err := svc.ToggleFavorite(ctx, "p1")
	assert.Error(t, err, "favorites need a signed-in user")

	sess.SetUser(&supabase.User{ID: "user-1"})

	on, err := svc.ToggleFavorite(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, on)

	off, err := svc.ToggleFavorite(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, off)

	favs, err := svc.Favorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestCreateProductValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.CreateProduct(ctx, catalog.Product{Name: "  "})
	assert.Error(t, err)

	_, err = svc.CreateProduct(ctx, catalog.Product{Name: "Aspirin", Price: -1})
	assert.Error(t, err)

	created, err := svc.CreateProduct(ctx, catalog.Product{Name: "Aspirin", Price: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestLowStockProducts(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	_, err := store.CreateProduct(ctx, catalog.Product{Name: "Full", StockQuantity: 50, LowStockThreshold: 10})
	require.NoError(t, err)
	_, err = store.CreateProduct(ctx, catalog.Product{Name: "Low", StockQuantity: 3, LowStockThreshold: 10})
	require.NoError(t, err)

	low, err := svc.LowStockProducts(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Low", low[0].Name)
}
