package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/domain/prescription"
	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/storage"
)

func TestCatalogCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	cat, err := s.CreateCategory(ctx, catalog.Category{Name: "Pain Relief", Slug: "pain-relief"})
	require.NoError(t, err)
	require.NotEmpty(t, cat.ID)

	created, err := s.CreateProduct(ctx, catalog.Product{
		CategoryID: cat.ID,
		Name:       "Ibuprofen 400mg",
		Slug:       "ibuprofen-400",
		Price:      6.50,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen 400mg", got.Name)

	got.Price = 7.20
	updated, err := s.UpdateProduct(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, 7.20, updated.Price)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	require.NoError(t, s.DeleteProduct(ctx, created.ID))
	_, err = s.GetProduct(ctx, created.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestGetProductNotFound(t *testing.T) {
	_, err := New().GetProduct(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestListProductsFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	cheap, err := s.CreateProduct(ctx, catalog.Product{CategoryID: "c1", Name: "Aspirin", Price: 3})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, catalog.Product{CategoryID: "c2", Name: "Thermometer", Price: 25})
	require.NoError(t, err)

	all, err := s.ListProducts(ctx, catalog.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := s.ListProducts(ctx, catalog.Filter{CategoryIDs: []string{"c1"}, MaxPrice: 10})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, cheap.ID, filtered[0].ID)
}

func TestSearchProducts(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateProduct(ctx, catalog.Product{Name: "Vitamin C", Description: "immune support"})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, catalog.Product{Name: "Bandage"})
	require.NoError(t, err)

	byName, err := s.SearchProducts(ctx, "vitamin")
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	byDescription, err := s.SearchProducts(ctx, "IMMUNE")
	require.NoError(t, err)
	assert.Len(t, byDescription, 1)

	none, err := s.SearchProducts(ctx, "syringe")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFavorites(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.AddFavorite(ctx, "user-1", "p1"))
	require.NoError(t, s.AddFavorite(ctx, "user-1", "p2"))
	require.NoError(t, s.AddFavorite(ctx, "user-1", "p1")) // idempotent

	favs, err := s.ListFavorites(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, favs)

	require.NoError(t, s.RemoveFavorite(ctx, "user-1", "p1"))
	favs, err = s.ListFavorites(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, favs)

	other, err := s.ListFavorites(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSearchHistory(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, q := range []string{"aspirin", "ibuprofen", "vitamin"} {
		require.NoError(t, s.RecordSearch(ctx, "user-1", q))
	}

	recent, err := s.RecentSearches(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"vitamin", "ibuprofen"}, recent)
}

func TestProfileUpsert(t *testing.T) {
	ctx := context.Background()
	s := New()

	p, err := s.UpdateProfile(ctx, profile.Profile{ID: "user-1", Role: profile.RoleCustomer, FirstName: "Ana"})
	require.NoError(t, err)
	assert.False(t, p.CreatedAt.IsZero())

	p.LastName = "Silva"
	again, err := s.UpdateProfile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, again.CreatedAt)
	assert.Equal(t, "Ana Silva", again.FullName())

	_, err = s.GetProfile(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestPrescriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.CreatePrescription(ctx, prescription.Prescription{UserID: "user-1", FileURL: "https://cdn/rx.pdf"})
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusPending, created.Status)

	now := time.Now().UTC()
	until := now.Add(30 * 24 * time.Hour)
	created.Status = prescription.StatusValidated
	created.ValidUntil = &until
	created.ValidatedBy = "admin-1"
	_, err = s.UpdatePrescription(ctx, created)
	require.NoError(t, err)

	usable, err := s.ListUsablePrescriptions(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, usable, 1)

	expired, err := s.ListUsablePrescriptions(ctx, "user-1", until.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)

	pending, err := s.ListPrescriptionsByStatus(ctx, prescription.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateOrderWithItems(t *testing.T) {
	ctx := context.Background()
	s := New()

	o, err := s.CreateOrderWithItems(ctx,
		order.Order{UserID: "user-1", TotalAmount: 13, ShippingAddress: "1 Rue du Bac"},
		[]order.Item{
			{ProductID: "p1", Quantity: 2, UnitPrice: 3},
			{ProductID: "p2", Quantity: 1, UnitPrice: 7},
		})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	require.Len(t, o.Items, 2)
	for _, item := range o.Items {
		assert.Equal(t, o.ID, item.OrderID)
		assert.NotEmpty(t, item.ID)
	}

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)

	mine, err := s.ListOrdersForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := s.ListOrdersForUser(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestUpdateOrderStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	o, err := s.CreateOrderWithItems(ctx, order.Order{UserID: "user-1"}, nil)
	require.NoError(t, err)

	updated, err := s.UpdateOrderStatus(ctx, o.ID, order.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, updated.Status)

	_, err = s.UpdateOrderStatus(ctx, "missing", order.StatusConfirmed)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
