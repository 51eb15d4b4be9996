// Package cart is the client-side shopping cart. It lives in memory only;
// nothing is persisted until checkout turns the cart into an order.
package cart

import (
	"sync"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
)

// Line is one product in the cart with its quantity. The product snapshot is
// taken when the line is added; price changes in the catalog do not reprice
// lines already in the cart.
type Line struct {
	Product  catalog.Product
	Quantity int
}

// Subtotal is the line price times quantity.
func (l Line) Subtotal() float64 {
	return l.Product.Price * float64(l.Quantity)
}

// Cart accumulates lines for one shopper. Safe for concurrent use.
type Cart struct {
	mu    sync.RWMutex
	lines []Line
}

// New creates an empty cart.
func New() *Cart {
	return &Cart{}
}

// AddItem adds quantity units of the product, merging with an existing line
// for the same product. A quantity below one counts as one.
func (c *Cart) AddItem(p catalog.Product, quantity int) {
	if quantity < 1 {
		quantity = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lines {
		if c.lines[i].Product.ID == p.ID {
			c.lines[i].Quantity += quantity
			return
		}
	}
	c.lines = append(c.lines, Line{Product: p, Quantity: quantity})
}

// RemoveItem drops the line for the product. Unknown products are ignored.
func (c *Cart) RemoveItem(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(productID)
}

func (c *Cart) removeLocked(productID string) {
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// UpdateQuantity sets the line quantity. A quantity of zero or below removes
// the line. Unknown products are ignored.
func (c *Cart) UpdateQuantity(productID string, quantity int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if quantity <= 0 {
		c.removeLocked(productID)
		return
	}
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			c.lines[i].Quantity = quantity
			return
		}
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// Lines returns a copy of the cart contents in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Line(nil), c.lines...)
}

// Count returns the total number of units across all lines.
func (c *Cart) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, l := range c.lines {
		total += l.Quantity
	}
	return total
}

// Total recomputes the cart total from its lines.
func (c *Cart) Total() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0.0
	for _, l := range c.lines {
		total += l.Subtotal()
	}
	return total
}

// RequiresPrescription reports whether any line carries a prescription-only
// product.
func (c *Cart) RequiresPrescription() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, l := range c.lines {
		if l.Product.RequiresPrescription {
			return true
		}
	}
	return false
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines) == 0
}
