package cart

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
)

func product(id string, price float64) catalog.Product {
	return catalog.Product{ID: id, Name: "product " + id, Price: price}
}

func TestAddItemMergesLines(t *testing.T) {
	c := New()
	c.AddItem(product("p1", 5), 2)
	c.AddItem(product("p1", 5), 3)

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, 5, c.Count())
}

func TestAddItemDefaultsQuantityToOne(t *testing.T) {
	c := New()
	c.AddItem(product("p1", 5), 0)
	c.AddItem(product("p2", 5), -3)

	assert.Equal(t, 2, c.Count())
}

func TestUpdateQuantity(t *testing.T) {
	c := New()
	c.AddItem(product("p1", 5), 2)

	c.UpdateQuantity("p1", 7)
	assert.Equal(t, 7, c.Count())

	// Zero and below remove the line.
	c.UpdateQuantity("p1", 0)
	assert.True(t, c.Empty())

	// Unknown product is a no-op.
	c.UpdateQuantity("missing", 3)
	assert.True(t, c.Empty())
}

func TestRemoveItem(t *testing.T) {
	c := New()
	c.AddItem(product("p1", 5), 1)
	c.AddItem(product("p2", 3), 1)

	c.RemoveItem("p1")
	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0].Product.ID)

	c.RemoveItem("missing")
	assert.Len(t, c.Lines(), 1)
}

func TestClear(t *testing.T) {
	c := New()
	c.AddItem(product("p1", 5), 4)
	c.Clear()

	assert.True(t, c.Empty())
	assert.Zero(t, c.Total())
}

func TestRequiresPrescription(t *testing.T) {
	c := New()
	c.AddItem(product("p1", 5), 1)
	assert.False(t, c.RequiresPrescription())

	rx := product("p2", 9)
	rx.RequiresPrescription = true
	c.AddItem(rx, 1)
	assert.True(t, c.RequiresPrescription())

	c.RemoveItem("p2")
	assert.False(t, c.RequiresPrescription())
}

func TestLinesReturnsCopy(t *testing.T) {
	c := New()
	c.AddItem(product("p1", 5), 2)

	lines := c.Lines()
	lines[0].Quantity = 99

	assert.Equal(t, 2, c.Lines()[0].Quantity)
}

// TestTotalMatchesLineSubtotals drives a random sequence of mutations and
// checks the recomputed total against an independently tracked sum.
func TestTotalMatchesLineSubtotals(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := New()
	expected := make(map[string]Line)

	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("p%d", rng.Intn(20))
		price := float64(rng.Intn(5000)) / 100

		switch rng.Intn(4) {
		case 0:
			qty := rng.Intn(5) - 1 // occasionally below one
			p := product(id, price)
			c.AddItem(p, qty)
			if qty < 1 {
				qty = 1
			}
			if line, ok := expected[id]; ok {
				line.Quantity += qty
				expected[id] = line
			} else {
				expected[id] = Line{Product: p, Quantity: qty}
			}
		case 1:
			qty := rng.Intn(8) - 2
			if _, ok := expected[id]; ok {
				c.UpdateQuantity(id, qty)
				if qty <= 0 {
					delete(expected, id)
				} else {
					line := expected[id]
					line.Quantity = qty
					expected[id] = line
				}
			}
		case 2:
			c.RemoveItem(id)
			delete(expected, id)
		case 3:
			if rng.Intn(20) == 0 {
				c.Clear()
				expected = make(map[string]Line)
			}
		}

		want := 0.0
		for _, line := range expected {
			want += line.Subtotal()
		}
		assert.InDelta(t, want, c.Total(), 1e-9)
	}
}
