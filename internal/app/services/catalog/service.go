// Package catalog exposes browsing, search and favorites over the catalog
// stores.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/session"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/pkg/logger"
)

// Config wires the catalog service.
type Config struct {
	Catalog   storage.CatalogStore
	Favorites storage.FavoriteStore
	Searches  storage.SearchHistoryStore
	Session   *session.Store
	Logger    *logger.Logger
}

// Service serves the storefront catalog.
type Service struct {
	catalog   storage.CatalogStore
	favorites storage.FavoriteStore
	searches  storage.SearchHistoryStore
	session   *session.Store
	logger    *logger.Logger
}

// New creates the service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{
		catalog:   cfg.Catalog,
		favorites: cfg.Favorites,
		searches:  cfg.Searches,
		session:   cfg.Session,
		logger:    log,
	}
}

// Categories lists all categories.
func (s *Service) Categories(ctx context.Context) ([]catalog.Category, error) {
	return s.catalog.ListCategories(ctx)
}

// Products lists products matching the filter.
func (s *Service) Products(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	return s.catalog.ListProducts(ctx, filter)
}

// Product fetches one product.
func (s *Service) Product(ctx context.Context, id string) (catalog.Product, error) {
	if strings.TrimSpace(id) == "" {
		return catalog.Product{}, fmt.Errorf("product id is required")
	}
	return s.catalog.GetProduct(ctx, id)
}

// Search finds products by name or description. When a user is signed in the
// query is recorded in their search history; a recording failure does not
// fail the search.
func (s *Service) Search(ctx context.Context, query string) ([]catalog.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}

	products, err := s.catalog.SearchProducts(ctx, query)
	if err != nil {
		return nil, err
	}

	if userID := s.session.UserID(); userID != "" {
		if err := s.searches.RecordSearch(ctx, userID, query); err != nil {
			s.logger.WithError(err).Warn("failed to record search")
		}
	}
	return products, nil
}

// RecentSearches returns the signed-in user's latest queries, newest first.
func (s *Service) RecentSearches(ctx context.Context, limit int) ([]string, error) {
	userID := s.session.UserID()
	if userID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return s.searches.RecentSearches(ctx, userID, limit)
}

// Favorites returns the signed-in user's favorite product IDs.
func (s *Service) Favorites(ctx context.Context) ([]string, error) {
	userID := s.session.UserID()
	if userID == "" {
		return nil, fmt.Errorf("sign in to use favorites")
	}
	return s.favorites.ListFavorites(ctx, userID)
}

// ToggleFavorite adds the product to the signed-in user's favorites, or
// removes it when already present. It returns whether the product is a
// favorite afterwards.
func (s *Service) ToggleFavorite(ctx context.Context, productID string) (bool, error) {
	userID := s.session.UserID()
	if userID == "" {
		return false, fmt.Errorf("sign in to use favorites")
	}

	current, err := s.favorites.ListFavorites(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list favorites: %w", err)
	}
	for _, id := range current {
		if id == productID {
			if err := s.favorites.RemoveFavorite(ctx, userID, productID); err != nil {
				return true, fmt.Errorf("remove favorite: %w", err)
			}
			return false, nil
		}
	}
	if err := s.favorites.AddFavorite(ctx, userID, productID); err != nil {
		return false, fmt.Errorf("add favorite: %w", err)
	}
	return true, nil
}

// CreateProduct adds a product to the catalog.
func (s *Service) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if err := validateProduct(p); err != nil {
		return catalog.Product{}, err
	}
	created, err := s.catalog.CreateProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, err
	}
	s.logger.WithField("product_id", created.ID).Info("product created")
	return created, nil
}

// UpdateProduct replaces a product's catalog entry.
func (s *Service) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if strings.TrimSpace(p.ID) == "" {
		return catalog.Product{}, fmt.Errorf("product id is required")
	}
	if err := validateProduct(p); err != nil {
		return catalog.Product{}, err
	}
	return s.catalog.UpdateProduct(ctx, p)
}

// DeleteProduct removes a product from the catalog.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("product id is required")
	}
	return s.catalog.DeleteProduct(ctx, id)
}

// LowStockProducts lists products at or below their reorder threshold.
func (s *Service) LowStockProducts(ctx context.Context) ([]catalog.Product, error) {
	all, err := s.catalog.ListProducts(ctx, catalog.Filter{})
	if err != nil {
		return nil, err
	}
	low := make([]catalog.Product, 0)
	for _, p := range all {
		if p.LowStock() {
			low = append(low, p)
		}
	}
	return low, nil
}

func validateProduct(p catalog.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product name is required")
	}
	if p.Price < 0 {
		return fmt.Errorf("product price cannot be negative")
	}
	if p.StockQuantity < 0 {
		return fmt.Errorf("stock quantity cannot be negative")
	}
	return nil
}
