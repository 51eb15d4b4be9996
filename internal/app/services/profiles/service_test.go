package profiles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestMineRequiresSignIn(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Mine(context.Background())
	assert.True(t, errors.Is(err, ErrNotSignedIn))
}

func TestUpdateRefreshesSession(t *testing.T) {
	ctx := context.Background()
	svc, store, sess := newService(t)

	_, err := store.UpdateProfile(ctx, profile.Profile{ID: "user-1", Role: profile.RoleCustomer})
	require.NoError(t, err)
	sess.SetUser(&supabase.User{ID: "user-1"})

	updated, err := svc.Update(ctx, " Ana ", "Silva", "+33600000000", "12 Rue des Lilas")
	require.NoError(t, err)
	assert.Equal(t, "Ana", updated.FirstName)
	assert.Equal(t, profile.RoleCustomer, updated.Role, "role survives a contact update")

	cached := sess.Profile()
	require.NotNil(t, cached)
	assert.Equal(t, "12 Rue des Lilas", cached.Address)
}

func TestUpdateNeedsAName(t *testing.T) {
	ctx := context.Background()
	svc, _, sess := newService(t)
	sess.SetUser(&supabase.User{ID: "user-1"})

	_, err := svc.Update(ctx, "  ", "", "", "")
	assert.Error(t, err)
}

func TestSetRole(t *testing.T) {
	ctx := context.Background()
	svc, store, sess := newService(t)

	_, err := store.UpdateProfile(ctx, profile.Profile{ID: "user-1", Role: profile.RoleCustomer})
	require.NoError(t, err)
	sess.SetUser(&supabase.User{ID: "admin-1"})

	promoted, err := svc.SetRole(ctx, "user-1", profile.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, profile.RoleStaff, promoted.Role)

	_, err = svc.SetRole(ctx, "user-1", profile.Role("bogus"))
	assert.Error(t, err)

	_, err = svc.SetRole(ctx, "admin-1", profile.RoleCustomer)
	assert.Error(t, err, "self-demotion is refused")
}

func TestAllListsProfiles(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	for _, id := range []string{"a", "b"} {
		_, err := store.UpdateProfile(ctx, profile.Profile{ID: id, Role: profile.RoleCustomer})
		require.NoError(t, err)
	}

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
