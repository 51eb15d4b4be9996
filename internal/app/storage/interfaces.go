// Package storage defines the persistence interfaces the services depend
// on. Backends: memory (tests, local development), supabasestore (the hosted
// gateway) and postgres (self-hosted deployments).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/domain/prescription"
	"github.com/pharmaverte/storefront/internal/app/domain/profile"
)

// ErrNotFound is returned when a requested row does not exist. Backends wrap
// it so callers can branch with errors.Is.
var ErrNotFound = errors.New("not found")

// CatalogStore reads and (for the back-office) writes the product catalog.
type CatalogStore interface {
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	SearchProducts(ctx context.Context, query string) ([]catalog.Product, error)

	CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error)
	CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// FavoriteStore persists per-user favorite products.
type FavoriteStore interface {
	ListFavorites(ctx context.Context, userID string) ([]string, error)
	AddFavorite(ctx context.Context, userID, productID string) error
	RemoveFavorite(ctx context.Context, userID, productID string) error
}

// SearchHistoryStore persists per-user catalog searches.
type SearchHistoryStore interface {
	RecordSearch(ctx context.Context, userID, query string) error
	RecentSearches(ctx context.Context, userID string, limit int) ([]string, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (profile.Profile, error)
	UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	ListProfiles(ctx context.Context) ([]profile.Profile, error)
}

// PrescriptionStore persists uploaded prescriptions and their review state.
type PrescriptionStore interface {
	CreatePrescription(ctx context.Context, p prescription.Prescription) (prescription.Prescription, error)
	GetPrescription(ctx context.Context, id string) (prescription.Prescription, error)
	UpdatePrescription(ctx context.Context, p prescription.Prescription) (prescription.Prescription, error)
	ListPrescriptionsForUser(ctx context.Context, userID string) ([]prescription.Prescription, error)
	// ListUsablePrescriptions returns the user's validated prescriptions
	// whose validity has not expired at the given instant.
	ListUsablePrescriptions(ctx context.Context, userID string, now time.Time) ([]prescription.Prescription, error)
	ListPrescriptionsByStatus(ctx context.Context, status prescription.Status) ([]prescription.Prescription, error)
}

// OrderStore persists orders and their lines.
//
// CreateOrderWithItems persists the order and all its items as one unit, as
// atomically as the backend allows: the postgres backend uses a single
// transaction, the gateway backend inserts the order then the items and
// compensates with a best-effort delete of the order when the item insert
// fails, and the memory backend commits under its lock.
type OrderStore interface {
	CreateOrderWithItems(ctx context.Context, o order.Order, items []order.Item) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	ListOrdersForUser(ctx context.Context, userID string) ([]order.Order, error)
	ListOrders(ctx context.Context) ([]order.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status order.Status) (order.Order, error)
}
