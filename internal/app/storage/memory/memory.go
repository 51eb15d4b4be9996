// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/domain/prescription"
	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/storage"
)

// Store holds all aggregates behind one mutex.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	categories    map[string]catalog.Category
	products      map[string]catalog.Product
	favorites     map[string]map[string]time.Time // userID -> productID -> added
	searches      map[string][]catalog.SearchEntry
	profiles      map[string]profile.Profile
	prescriptions map[string]prescription.Prescription
	orders        map[string]order.Order
	orderItems    map[string][]order.Item
}

var _ storage.CatalogStore = (*Store)(nil)
var _ storage.FavoriteStore = (*Store)(nil)
var _ storage.SearchHistoryStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)
var _ storage.PrescriptionStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		categories:    make(map[string]catalog.Category),
		products:      make(map[string]catalog.Product),
		favorites:     make(map[string]map[string]time.Time),
		searches:      make(map[string][]catalog.SearchEntry),
		profiles:      make(map[string]profile.Profile),
		prescriptions: make(map[string]prescription.Prescription),
		orders:        make(map[string]order.Order),
		orderItems:    make(map[string][]order.Item),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// CatalogStore implementation -------------------------------------------------

func (s *Store) ListCategories(_ context.Context) ([]catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListProducts(_ context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) SearchProducts(_ context.Context, query string) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]catalog.Product, 0)
	for _, p := range s.products {
		if needle == "" ||
			strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c catalog.Category) (catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.categories[c.ID]; exists {
		return catalog.Category{}, fmt.Errorf("category %s already exists", c.ID)
	}
	c.CreatedAt = time.Now().UTC()
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.products[p.ID]; exists {
		return catalog.Product{}, fmt.Errorf("product %s already exists", p.ID)
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.products[p.ID]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %s: %w", p.ID, storage.ErrNotFound)
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	delete(s.products, id)
	return nil
}

// FavoriteStore implementation ------------------------------------------------

func (s *Store) ListFavorites(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.favorites[userID]))
	for productID := range s.favorites[userID] {
		out = append(out, productID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AddFavorite(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.favorites[userID] == nil {
		s.favorites[userID] = make(map[string]time.Time)
	}
	s.favorites[userID][productID] = time.Now().UTC()
	return nil
}

func (s *Store) RemoveFavorite(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.favorites[userID], productID)
	return nil
}

// SearchHistoryStore implementation -------------------------------------------

func (s *Store) RecordSearch(_ context.Context, userID, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := catalog.SearchEntry{
		ID:        s.nextIDLocked(),
		UserID:    userID,
		Query:     query,
		CreatedAt: time.Now().UTC(),
	}
	s.searches[userID] = append(s.searches[userID], entry)
	return nil
}

func (s *Store) RecentSearches(_ context.Context, userID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.searches[userID]
	out := make([]string, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i].Query)
	}
	return out, nil
}

// ProfileStore implementation -------------------------------------------------

func (s *Store) GetProfile(_ context.Context, id string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.profiles[p.ID]
	if ok {
		p.CreatedAt = original.CreatedAt
		if p.Role == "" {
			p.Role = original.Role
		}
	} else {
		p.CreatedAt = time.Now().UTC()
		if p.Role == "" {
			p.Role = profile.RoleCustomer
		}
	}
	p.UpdatedAt = time.Now().UTC()
	s.profiles[p.ID] = p
	return p, nil
}

func (s *Store) ListProfiles(_ context.Context) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PrescriptionStore implementation --------------------------------------------

func (s *Store) CreatePrescription(_ context.Context, p prescription.Prescription) (prescription.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.prescriptions[p.ID]; exists {
		return prescription.Prescription{}, fmt.Errorf("prescription %s already exists", p.ID)
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = prescription.StatusPending
	}
	s.prescriptions[p.ID] = p
	return p, nil
}

func (s *Store) GetPrescription(_ context.Context, id string) (prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prescriptions[id]
	if !ok {
		return prescription.Prescription{}, fmt.Errorf("prescription %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) UpdatePrescription(_ context.Context, p prescription.Prescription) (prescription.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.prescriptions[p.ID]
	if !ok {
		return prescription.Prescription{}, fmt.Errorf("prescription %s: %w", p.ID, storage.ErrNotFound)
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.prescriptions[p.ID] = p
	return p, nil
}

func (s *Store) ListPrescriptionsForUser(_ context.Context, userID string) ([]prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]prescription.Prescription, 0)
	for _, p := range s.prescriptions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sortPrescriptions(out)
	return out, nil
}

func (s *Store) ListUsablePrescriptions(_ context.Context, userID string, now time.Time) ([]prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]prescription.Prescription, 0)
	for _, p := range s.prescriptions {
		if p.UserID == userID && p.Usable(now) {
			out = append(out, p)
		}
	}
	sortPrescriptions(out)
	return out, nil
}

func (s *Store) ListPrescriptionsByStatus(_ context.Context, status prescription.Status) ([]prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]prescription.Prescription, 0)
	for _, p := range s.prescriptions {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sortPrescriptions(out)
	return out, nil
}

func sortPrescriptions(list []prescription.Prescription) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// OrderStore implementation ---------------------------------------------------

func (s *Store) CreateOrderWithItems(_ context.Context, o order.Order, items []order.Item) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = s.nextIDLocked()
	} else if _, exists := s.orders[o.ID]; exists {
		return order.Order{}, fmt.Errorf("order %s already exists", o.ID)
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = order.StatusPending
	}

	stored := make([]order.Item, 0, len(items))
	for _, item := range items {
		item.ID = s.nextIDLocked()
		item.OrderID = o.ID
		item.CreatedAt = now
		stored = append(stored, item)
	}

	o.Items = nil
	s.orders[o.ID] = o
	s.orderItems[o.ID] = stored

	o.Items = append([]order.Item(nil), stored...)
	return o, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, fmt.Errorf("order %s: %w", id, storage.ErrNotFound)
	}
	o.Items = append([]order.Item(nil), s.orderItems[id]...)
	return o, nil
}

func (s *Store) ListOrdersForUser(_ context.Context, userID string) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.Order, 0)
	for id, o := range s.orders {
		if o.UserID == userID {
			o.Items = append([]order.Item(nil), s.orderItems[id]...)
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

func (s *Store) ListOrders(_ context.Context) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.Order, 0, len(s.orders))
	for id, o := range s.orders {
		o.Items = append([]order.Item(nil), s.orderItems[id]...)
		out = append(out, o)
	}
	sortOrders(out)
	return out, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status order.Status) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, fmt.Errorf("order %s: %w", id, storage.ErrNotFound)
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	o.Items = append([]order.Item(nil), s.orderItems[id]...)
	return o, nil
}

func sortOrders(list []order.Order) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
