// Package session mirrors the authenticated identity and its profile for the
// rest of the application. The store itself is passive state; the Watcher
// keeps it in sync with the auth client.
package session

import (
	"sync"

	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/supabase"
)

// Store holds the signed-in user and their profile. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	user    *supabase.User
	profile *profile.Profile
}

// NewStore creates a signed-out store.
func NewStore() *Store {
	return &Store{}
}

// SetUser records the signed-in user. It does not touch the profile; callers
// that learn the profile separately set it with SetProfile.
func (s *Store) SetUser(u *supabase.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// SetProfile records the profile for the signed-in user.
func (s *Store) SetProfile(p *profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// Clear resets the store to the signed-out state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.profile = nil
}

// User returns the signed-in user, or nil.
func (s *Store) User() *supabase.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Profile returns the signed-in user's profile, or nil when unknown.
func (s *Store) Profile() *profile.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// UserID returns the signed-in user's ID, or empty when signed out.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// SignedIn reports whether a user is signed in.
func (s *Store) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// HasRole reports whether the signed-in user's profile carries the role.
func (s *Store) HasRole(role profile.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile != nil && s.profile.Role == role
}
