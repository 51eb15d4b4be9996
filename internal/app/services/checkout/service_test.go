package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaverte/storefront/internal/app/cart"
	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/domain/prescription"
	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/session"
	"github.com/pharmaverte/storefront/internal/app/storage/memory"
	"github.com/pharmaverte/storefront/supabase"
)

type fixture struct {
	service *Service
	cart    *cart.Cart
	session *session.Store
	store   *memory.Store
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cart:    cart.New(),
		session: session.NewStore(),
		store:   memory.New(),
		now:     time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = New(Config{
		Cart:          f.cart,
		Session:       f.session,
		Prescriptions: f.store,
		Orders:        f.store,
		Now:           func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) signIn(userID string) {
	f.session.SetUser(&supabase.User{ID: userID})
	f.session.SetProfile(&profile.Profile{ID: userID, Address: "12 Rue des Lilas"})
}

func (f *fixture) addValidPrescription(t *testing.T, userID string) prescription.Prescription {
	t.Helper()
	created, err := f.store.CreatePrescription(context.Background(),
		prescription.Prescription{UserID: userID, FileURL: "https://cdn/rx.pdf"})
	require.NoError(t, err)

	until := f.now.Add(30 * 24 * time.Hour)
	created.Status = prescription.StatusValidated
	created.ValidUntil = &until
	updated, err := f.store.UpdatePrescription(context.Background(), created)
	require.NoError(t, err)
	return updated
}

func otcProduct(id string, price float64) catalog.Product {
	return catalog.Product{ID: id, Name: "otc " + id, Price: price}
}

func rxProduct(id string, price float64) catalog.Product {
	return catalog.Product{ID: id, Name: "rx " + id, Price: price, RequiresPrescription: true}
}

func TestSubmitEmptyCart(t *testing.T) {
	f := newFixture(t)
	f.signIn("user-1")

	_, err := f.service.Submit(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyCart))
}

func TestSubmitNotSignedIn(t *testing.T) {
	f := newFixture(t)
	f.cart.AddItem(otcProduct("p1", 5), 1)

	_, err := f.service.Submit(context.Background())
	assert.True(t, errors.Is(err, ErrNotSignedIn))
	assert.False(t, f.cart.Empty(), "cart must survive a failed submit")
}

func TestSubmitWithoutPrescriptionBlocked(t *testing.T) {
	f := newFixture(t)
	f.signIn("user-1")
	f.cart.AddItem(rxProduct("p1", 20), 1)

	_, err := f.service.Submit(context.Background())
	assert.True(t, errors.Is(err, ErrPrescriptionRequired))
	assert.False(t, f.cart.Empty())
}

func TestSubmitExpiredPrescriptionBlocked(t *testing.T) {
	f := newFixture(t)
	f.signIn("user-1")
	rx := f.addValidPrescription(t, "user-1")
	f.now = rx.ValidUntil.Add(time.Hour)
	f.cart.AddItem(rxProduct("p1", 20), 1)

	_, err := f.service.Submit(context.Background())
	assert.True(t, errors.Is(err, ErrPrescriptionRequired))
}

func TestSubmitOverTheCounterNeedsNoPrescription(t *testing.T) {
	f := newFixture(t)
	f.signIn("user-1")
	f.cart.AddItem(otcProduct("p1", 5), 2)

	created, err := f.service.Submit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created.PrescriptionID)
	assert.Equal(t, 10.0, created.TotalAmount)
	assert.True(t, f.cart.Empty(), "cart clears after a successful submit")
}

func TestSubmitAttachesPrescription(t *testing.T) {
	f := newFixture(t)
	f.signIn("user-1")
	rx := f.addValidPrescription(t, "user-1")
	f.cart.AddItem(rxProduct("p1", 20), 1)
	f.cart.AddItem(otcProduct("p2", 5), 3)

	created, err := f.service.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rx.ID, created.PrescriptionID)
	assert.Equal(t, 35.0, created.TotalAmount)
	assert.Equal(t, "12 Rue des Lilas", created.ShippingAddress)
	assert.NotEmpty(t, created.ClientReference)
	assert.Equal(t, order.StatusPending, created.Status)

	require.Len(t, created.Items, 2)
	byProduct := map[string]order.Item{}
	for _, item := range created.Items {
		byProduct[item.ProductID] = item
	}
	assert.Equal(t, 20.0, byProduct["p1"].UnitPrice)
	assert.Equal(t, 3, byProduct["p2"].Quantity)
}

func TestSubmitSnapshotsUnitPrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn("user-1")

	p, err := f.store.CreateProduct(ctx, otcProduct("p1", 7.50))
	require.NoError(t, err)
	f.cart.AddItem(p, 2)

	created, err := f.service.Submit(ctx)
	require.NoError(t, err)
	require.Len(t, created.Items, 1)
	assert.Equal(t, 7.50, created.Items[0].UnitPrice)
	assert.Equal(t, 15.0, created.TotalAmount)

	// A later catalog price change must not touch the persisted order.
	p.Price = 9.99
	_, err = f.store.UpdateProduct(ctx, p)
	require.NoError(t, err)

	stored, err := f.store.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 7.50, stored.Items[0].UnitPrice)
	assert.Equal(t, 15.0, stored.TotalAmount)
}

type failingOrders struct {
	memory.Store
}

func (f *failingOrders) CreateOrderWithItems(context.Context, order.Order, []order.Item) (order.Order, error) {
	return order.Order{}, errors.New("gateway unavailable")
}

func TestSubmitKeepsCartOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.signIn("user-1")
	f.cart.AddItem(otcProduct("p1", 5), 1)
	f.service = New(Config{
		Cart:          f.cart,
		Session:       f.session,
		Prescriptions: f.store,
		Orders:        &failingOrders{},
		Now:           func() time.Time { return f.now },
	})

	_, err := f.service.Submit(context.Background())
	require.Error(t, err)
	assert.False(t, f.cart.Empty())
}

type outcomeRecorder struct {
	outcomes []string
}

func (r *outcomeRecorder) RecordCheckout(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestSubmitRecordsOutcomes(t *testing.T) {
	f := newFixture(t)
	rec := &outcomeRecorder{}
	f.service = New(Config{
		Cart:          f.cart,
		Session:       f.session,
		Prescriptions: f.store,
		Orders:        f.store,
		Recorder:      rec,
		Now:           func() time.Time { return f.now },
	})

	_, _ = f.service.Submit(context.Background())
	f.signIn("user-1")
	f.cart.AddItem(otcProduct("p1", 5), 1)
	_, err := f.service.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"empty_cart", "success"}, rec.outcomes)
}
