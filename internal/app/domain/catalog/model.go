// Package catalog holds the product catalog domain model.
package catalog

import "time"

// Category groups products for browsing and filtering.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product is a catalog entry. Price is in whole currency units; products
// flagged RequiresPrescription can only be ordered against a validated,
// unexpired prescription.
type Product struct {
	ID                   string    `json:"id"`
	CategoryID           string    `json:"category_id"`
	Name                 string    `json:"name"`
	Slug                 string    `json:"slug"`
	Description          string    `json:"description,omitempty"`
	Price                float64   `json:"price"`
	RequiresPrescription bool      `json:"requires_prescription"`
	StockQuantity        int       `json:"stock_quantity"`
	LowStockThreshold    int       `json:"low_stock_threshold"`
	ImageURL             string    `json:"image_url,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// LowStock reports whether the product has fallen to its reorder threshold.
func (p Product) LowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}

// Filter narrows product listings. Zero values mean "no constraint".
type Filter struct {
	CategoryIDs []string
	MaxPrice    float64
}

// Matches reports whether the product satisfies the filter.
func (f Filter) Matches(p Product) bool {
	if f.MaxPrice > 0 && p.Price > f.MaxPrice {
		return false
	}
	if len(f.CategoryIDs) == 0 {
		return true
	}
	for _, id := range f.CategoryIDs {
		if p.CategoryID == id {
			return true
		}
	}
	return false
}

// Favorite marks a product as saved by a user.
type Favorite struct {
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchEntry is one recorded catalog search for a user.
type SearchEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}
