// Package supabasestore implements the storage interfaces against the hosted
// gateway's row endpoints.
package supabasestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/domain/prescription"
	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/pkg/logger"
	"github.com/pharmaverte/storefront/supabase"
)

// Store is a gateway-backed implementation of every storage interface.
type Store struct {
	client *supabase.Client
	logger *logger.Logger
}

var _ storage.CatalogStore = (*Store)(nil)
var _ storage.FavoriteStore = (*Store)(nil)
var _ storage.SearchHistoryStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)
var _ storage.PrescriptionStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)

// New creates a store bound to the given gateway client.
func New(client *supabase.Client, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault("supabasestore")
	}
	return &Store{client: client, logger: log}
}

func wrapErr(op string, err error) error {
	if supabase.IsNotFound(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CatalogStore implementation -------------------------------------------------

func (s *Store) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	var out []catalog.Category
	err := s.client.From("categories").
		Select("*").
		Order("name", true).
		Get(ctx, &out)
	if err != nil {
		return nil, wrapErr("list categories", err)
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	q := s.client.From("products").Select("*").Order("name", true)
	if len(filter.CategoryIDs) == 1 {
		q = q.Eq("category_id", filter.CategoryIDs[0])
	}
	if filter.MaxPrice > 0 {
		q = q.Lte("price", filter.MaxPrice)
	}

	var out []catalog.Product
	if err := q.Get(ctx, &out); err != nil {
		return nil, wrapErr("list products", err)
	}
	// The row filter covers the single-category case; a multi-category
	// filter is applied here.
	if len(filter.CategoryIDs) > 1 {
		filtered := out[:0]
		for _, p := range out {
			if filter.Matches(p) {
				filtered = append(filtered, p)
			}
		}
		out = filtered
	}
	return out, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	var out catalog.Product
	err := s.client.From("products").
		Select("*").
		Eq("id", id).
		Single().
		Get(ctx, &out)
	if err != nil {
		return catalog.Product{}, wrapErr("get product", err)
	}
	return out, nil
}

func (s *Store) SearchProducts(ctx context.Context, query string) ([]catalog.Product, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	var out []catalog.Product
	err := s.client.From("products").
		Select("*").
		ILike("name", pattern).
		Order("name", true).
		Get(ctx, &out)
	if err != nil {
		return nil, wrapErr("search products", err)
	}
	return out, nil
}

func (s *Store) CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	payload := map[string]any{
		"name":        c.Name,
		"slug":        c.Slug,
		"description": c.Description,
	}
	var out catalog.Category
	if err := s.client.From("categories").Single().Insert(ctx, payload, &out); err != nil {
		return catalog.Category{}, wrapErr("create category", err)
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	var out catalog.Product
	if err := s.client.From("products").Single().Insert(ctx, productPayload(p), &out); err != nil {
		return catalog.Product{}, wrapErr("create product", err)
	}
	return out, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	var out catalog.Product
	err := s.client.From("products").
		Eq("id", p.ID).
		Single().
		Update(ctx, productPayload(p), &out)
	if err != nil {
		return catalog.Product{}, wrapErr("update product", err)
	}
	return out, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if err := s.client.From("products").Eq("id", id).Delete(ctx); err != nil {
		return wrapErr("delete product", err)
	}
	return nil
}

func productPayload(p catalog.Product) map[string]any {
	return map[string]any{
		"category_id":           p.CategoryID,
		"name":                  p.Name,
		"slug":                  p.Slug,
		"description":           p.Description,
		"price":                 p.Price,
		"requires_prescription": p.RequiresPrescription,
		"stock_quantity":        p.StockQuantity,
		"low_stock_threshold":   p.LowStockThreshold,
		"image_url":             p.ImageURL,
	}
}

// FavoriteStore implementation ------------------------------------------------

func (s *Store) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	var rows []catalog.Favorite
	err := s.client.From("favorites").
		Select("product_id").
		Eq("user_id", userID).
		Get(ctx, &rows)
	if err != nil {
		return nil, wrapErr("list favorites", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ProductID)
	}
	return out, nil
}

func (s *Store) AddFavorite(ctx context.Context, userID, productID string) error {
	payload := map[string]any{"user_id": userID, "product_id": productID}
	if err := s.client.From("favorites").Insert(ctx, payload, nil); err != nil {
		return wrapErr("add favorite", err)
	}
	return nil
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, productID string) error {
	err := s.client.From("favorites").
		Eq("user_id", userID).
		Eq("product_id", productID).
		Delete(ctx)
	if err != nil {
		return wrapErr("remove favorite", err)
	}
	return nil
}

// SearchHistoryStore implementation -------------------------------------------

func (s *Store) RecordSearch(ctx context.Context, userID, query string) error {
	payload := map[string]any{"user_id": userID, "query": query}
	if err := s.client.From("search_history").Insert(ctx, payload, nil); err != nil {
		return wrapErr("record search", err)
	}
	return nil
}

func (s *Store) RecentSearches(ctx context.Context, userID string, limit int) ([]string, error) {
	var rows []catalog.SearchEntry
	err := s.client.From("search_history").
		Select("query").
		Eq("user_id", userID).
		Order("created_at", false).
		Limit(limit).
		Get(ctx, &rows)
	if err != nil {
		return nil, wrapErr("recent searches", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Query)
	}
	return out, nil
}

// ProfileStore implementation -------------------------------------------------

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var out profile.Profile
	err := s.client.From("profiles").
		Select("*").
		Eq("id", id).
		Single().
		Get(ctx, &out)
	if err != nil {
		return profile.Profile{}, wrapErr("get profile", err)
	}
	return out, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	payload := map[string]any{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"phone":      p.Phone,
		"address":    p.Address,
	}
	if p.Role != "" {
		payload["role"] = p.Role
	}
	var out profile.Profile
	err := s.client.From("profiles").
		Eq("id", p.ID).
		Single().
		Update(ctx, payload, &out)
	if err != nil {
		return profile.Profile{}, wrapErr("update profile", err)
	}
	return out, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	var out []profile.Profile
	err := s.client.From("profiles").
		Select("*").
		Order("created_at", false).
		Get(ctx, &out)
	if err != nil {
		return nil, wrapErr("list profiles", err)
	}
	return out, nil
}

// PrescriptionStore implementation --------------------------------------------

func (s *Store) CreatePrescription(ctx context.Context, p prescription.Prescription) (prescription.Prescription, error) {
	payload := map[string]any{
		"user_id":  p.UserID,
		"file_url": p.FileURL,
		"status":   prescription.StatusPending,
	}
	var out prescription.Prescription
	if err := s.client.From("prescriptions").Single().Insert(ctx, payload, &out); err != nil {
		return prescription.Prescription{}, wrapErr("create prescription", err)
	}
	return out, nil
}

func (s *Store) GetPrescription(ctx context.Context, id string) (prescription.Prescription, error) {
	var out prescription.Prescription
	err := s.client.From("prescriptions").
		Select("*").
		Eq("id", id).
		Single().
		Get(ctx, &out)
	if err != nil {
		return prescription.Prescription{}, wrapErr("get prescription", err)
	}
	return out, nil
}

func (s *Store) UpdatePrescription(ctx context.Context, p prescription.Prescription) (prescription.Prescription, error) {
	payload := map[string]any{
		"status":       p.Status,
		"validated_by": p.ValidatedBy,
		"notes":        p.Notes,
	}
	if p.ValidUntil != nil {
		payload["valid_until"] = p.ValidUntil.Format(time.RFC3339)
	}
	var out prescription.Prescription
	err := s.client.From("prescriptions").
		Eq("id", p.ID).
		Single().
		Update(ctx, payload, &out)
	if err != nil {
		return prescription.Prescription{}, wrapErr("update prescription", err)
	}
	return out, nil
}

func (s *Store) ListPrescriptionsForUser(ctx context.Context, userID string) ([]prescription.Prescription, error) {
	var out []prescription.Prescription
	err := s.client.From("prescriptions").
		Select("*").
		Eq("user_id", userID).
		Order("created_at", false).
		Get(ctx, &out)
	if err != nil {
		return nil, wrapErr("list prescriptions", err)
	}
	return out, nil
}

func (s *Store) ListUsablePrescriptions(ctx context.Context, userID string, now time.Time) ([]prescription.Prescription, error) {
	var out []prescription.Prescription
	err := s.client.From("prescriptions").
		Select("*").
		Eq("user_id", userID).
		Eq("status", prescription.StatusValidated).
		Gte("valid_until", now.UTC().Format(time.RFC3339)).
		Order("created_at", false).
		Get(ctx, &out)
	if err != nil {
		return nil, wrapErr("list usable prescriptions", err)
	}
	return out, nil
}

func (s *Store) ListPrescriptionsByStatus(ctx context.Context, status prescription.Status) ([]prescription.Prescription, error) {
	var out []prescription.Prescription
	err := s.client.From("prescriptions").
		Select("*").
		Eq("status", status).
		Order("created_at", false).
		Get(ctx, &out)
	if err != nil {
		return nil, wrapErr("list prescriptions by status", err)
	}
	return out, nil
}

// OrderStore implementation ---------------------------------------------------

// CreateOrderWithItems inserts the order row and then its item rows. The
// gateway offers no multi-table transaction, so a failed item insert is
// compensated by a best-effort delete of the freshly created order.
func (s *Store) CreateOrderWithItems(ctx context.Context, o order.Order, items []order.Item) (order.Order, error) {
	if o.ClientReference == "" {
		o.ClientReference = uuid.NewString()
	}
	payload := map[string]any{
		"user_id":          o.UserID,
		"status":           order.StatusPending,
		"total_amount":     o.TotalAmount,
		"shipping_address": o.ShippingAddress,
		"client_reference": o.ClientReference,
	}
	if o.PrescriptionID != "" {
		payload["prescription_id"] = o.PrescriptionID
	}

	var created order.Order
	if err := s.client.From("orders").Single().Insert(ctx, payload, &created); err != nil {
		return order.Order{}, wrapErr("create order", err)
	}

	itemRows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		itemRows = append(itemRows, map[string]any{
			"order_id":   created.ID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"unit_price": item.UnitPrice,
		})
	}

	var createdItems []order.Item
	if err := s.client.From("order_items").Insert(ctx, itemRows, &createdItems); err != nil {
		if delErr := s.client.From("orders").Eq("id", created.ID).Delete(ctx); delErr != nil {
			s.logger.WithError(delErr).WithField("order_id", created.ID).
				Error("failed to roll back order after item insert failure")
		}
		return order.Order{}, wrapErr("create order items", err)
	}

	created.Items = createdItems
	return created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var out order.Order
	err := s.client.From("orders").
		Select("*,items:order_items(*)").
		Eq("id", id).
		Single().
		Get(ctx, &out)
	if err != nil {
		return order.Order{}, wrapErr("get order", err)
	}
	return out, nil
}

func (s *Store) ListOrdersForUser(ctx context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	err := s.client.From("orders").
		Select("*,items:order_items(*)").
		Eq("user_id", userID).
		Order("created_at", false).
		Get(ctx, &out)
	if err != nil {
		return nil, wrapErr("list orders", err)
	}
	return out, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]order.Order, error) {
	var out []order.Order
	err := s.client.From("orders").
		Select("*,items:order_items(*)").
		Order("created_at", false).
		Get(ctx, &out)
	if err != nil {
		return nil, wrapErr("list all orders", err)
	}
	return out, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status order.Status) (order.Order, error) {
	var out order.Order
	err := s.client.From("orders").
		Eq("id", id).
		Single().
		Update(ctx, map[string]any{"status": status}, &out)
	if err != nil {
		return order.Order{}, wrapErr("update order status", err)
	}
	return out, nil
}
