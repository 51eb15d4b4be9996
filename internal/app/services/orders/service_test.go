package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/session"
	"github.com/pharmaverte/storefront/internal/app/storage/memory"
	"github.com/pharmaverte/storefront/supabase"
)

func newService(t *testing.T) (*Service, *memory.Store, *session.Store) {
	t.Helper()
	store := memory.New()
	sess := session.NewStore()
	return New(Config{Store: store, Session: sess}), store, sess
}

func place(t *testing.T, store *memory.Store, userID string) order.Order {
	t.Helper()
	o, err := store.CreateOrderWithItems(context.Background(),
		order.Order{UserID: userID, TotalAmount: 10},
		[]order.Item{{ProductID: "p1", Quantity: 1, UnitPrice: 10}})
	require.NoError(t, err)
	return o
}

func TestMineRequiresSignIn(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Mine(context.Background())
	assert.True(t, errors.Is(err, ErrNotSignedIn))
}

func TestGetEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	svc, store, sess := newService(t)
	o := place(t, store, "user-1")

	sess.SetUser(&supabase.User{ID: "user-2"})
	_, err := svc.Get(ctx, o.ID)
	assert.True(t, errors.Is(err, ErrForbidden))

	// Staff can read any order.
	sess.SetProfile(&profile.Profile{ID: "user-2", Role: profile.RoleStaff})
	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	sess.SetUser(&supabase.User{ID: "user-1"})
	sess.SetProfile(nil)
	got, err = svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestAdvanceFollowsTransitionTable(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	o := place(t, store, "user-1")

	for _, status := range []order.Status{
		order.StatusConfirmed, order.StatusPreparing, order.StatusReady, order.StatusDelivered,
	} {
		updated, err := svc.Advance(ctx, o.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}

	// Delivered is terminal.
	_, err := svc.Advance(ctx, o.ID, order.StatusCancelled)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestAdvanceRejectsSkips(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	o := place(t, store, "user-1")

	_, err := svc.Advance(ctx, o.ID, order.StatusReady)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = svc.Advance(ctx, o.ID, order.Status("bogus"))
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestCancelBeforePreparationOnly(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	o := place(t, store, "user-1")
	_, err := svc.Advance(ctx, o.ID, order.StatusCancelled)
	require.NoError(t, err)

	o = place(t, store, "user-1")
	_, err = svc.Advance(ctx, o.ID, order.StatusConfirmed)
	require.NoError(t, err)
	_, err = svc.Advance(ctx, o.ID, order.StatusPreparing)
	require.NoError(t, err)
	_, err = svc.Advance(ctx, o.ID, order.StatusCancelled)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}
