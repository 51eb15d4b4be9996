package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/storage/memory"
	"github.com/pharmaverte/storefront/supabase"
)

type fakeFeed struct {
	ch      chan supabase.SessionChange
	current *supabase.Session
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan supabase.SessionChange, 8)}
}

func (f *fakeFeed) Session() *supabase.Session {
	return f.current
}

func (f *fakeFeed) Subscribe() (<-chan supabase.SessionChange, func()) {
	return f.ch, func() {}
}

func (f *fakeFeed) emit(change supabase.SessionChange) {
	f.ch <- change
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore()
	assert.False(t, s.SignedIn())
	assert.Empty(t, s.UserID())

	s.SetUser(&supabase.User{ID: "user-1", Email: "ana@example.com"})
	s.SetProfile(&profile.Profile{ID: "user-1", Role: profile.RoleAdmin})

	assert.True(t, s.SignedIn())
	assert.Equal(t, "user-1", s.UserID())
	assert.True(t, s.HasRole(profile.RoleAdmin))
	assert.False(t, s.HasRole(profile.RoleCustomer))

	s.Clear()
	assert.False(t, s.SignedIn())
	assert.Nil(t, s.Profile())
}

func TestWatcherSignInLoadsProfile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profiles := memory.New()
	_, err := profiles.UpdateProfile(ctx, profile.Profile{ID: "user-1", Role: profile.RoleCustomer, FirstName: "Ana"})
	require.NoError(t, err)

	feed := newFakeFeed()
	store := NewStore()
	go NewWatcher(feed, profiles, store, nil).Run(ctx)

	feed.emit(supabase.SessionChange{
		Event:   supabase.EventSignedIn,
		Session: &supabase.Session{User: &supabase.User{ID: "user-1"}},
	})

	require.Eventually(t, func() bool {
		p := store.Profile()
		return p != nil && p.FirstName == "Ana"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "user-1", store.UserID())
}

func TestWatcherSignOutClearsStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := newFakeFeed()
	store := NewStore()
	store.SetUser(&supabase.User{ID: "user-1"})
	go NewWatcher(feed, memory.New(), store, nil).Run(ctx)

	feed.emit(supabase.SessionChange{Event: supabase.EventSignedOut})

	require.Eventually(t, func() bool {
		return !store.SignedIn()
	}, time.Second, 10*time.Millisecond)
}

func TestWatcherPicksUpExistingSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profiles := memory.New()
	_, err := profiles.UpdateProfile(ctx, profile.Profile{ID: "user-1", Role: profile.RoleCustomer})
	require.NoError(t, err)

	feed := newFakeFeed()
	feed.current = &supabase.Session{User: &supabase.User{ID: "user-1"}}
	store := NewStore()
	go NewWatcher(feed, profiles, store, nil).Run(ctx)

	require.Eventually(t, func() bool {
		return store.SignedIn() && store.Profile() != nil
	}, time.Second, 10*time.Millisecond)
}

func TestWatcherMissingProfileLeavesUserSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := newFakeFeed()
	store := NewStore()
	go NewWatcher(feed, memory.New(), store, nil).Run(ctx)

	feed.emit(supabase.SessionChange{
		Event:   supabase.EventSignedIn,
		Session: &supabase.Session{User: &supabase.User{ID: "user-2"}},
	})

	require.Eventually(t, func() bool {
		return store.SignedIn()
	}, time.Second, 10*time.Millisecond)
	assert.Nil(t, store.Profile())
}
