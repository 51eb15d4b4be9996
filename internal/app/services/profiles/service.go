// Package profiles serves the signed-in user's profile and the back-office
// customer list.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/session"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/pkg/logger"
)

// ErrNotSignedIn is returned for operations that need a signed-in user.
var ErrNotSignedIn = errors.New("not signed in")

// Config wires the profile service.
type Config struct {
	Store   storage.ProfileStore
	Session *session.Store
	Logger  *logger.Logger
}

// Service reads and updates profiles.
type Service struct {
	store   storage.ProfileStore
	session *session.Store
	logger  *logger.Logger
}

// New creates the service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("profiles")
	}
	return &Service{store: cfg.Store, session: cfg.Session, logger: log}
}

// Mine fetches the signed-in user's profile.
func (s *Service) Mine(ctx context.Context) (profile.Profile, error) {
	userID := s.session.UserID()
	if userID == "" {
		return profile.Profile{}, ErrNotSignedIn
	}
	return s.store.GetProfile(ctx, userID)
}

// Update replaces the signed-in user's contact fields and refreshes the
// session's cached profile. The role is never writable here.
func (s *Service) Update(ctx context.Context, firstName, lastName, phone, address string) (profile.Profile, error) {
	userID := s.session.UserID()
	if userID == "" {
		return profile.Profile{}, ErrNotSignedIn
	}
	if strings.TrimSpace(firstName) == "" && strings.TrimSpace(lastName) == "" {
		return profile.Profile{}, fmt.Errorf("a name is required")
	}

	updated, err := s.store.UpdateProfile(ctx, profile.Profile{
		ID:        userID,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Phone:     strings.TrimSpace(phone),
		Address:   strings.TrimSpace(address),
	})
	if err != nil {
		return profile.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	s.session.SetProfile(&updated)
	s.logger.WithField("user_id", userID).Info("profile updated")
	return updated, nil
}

// All lists every profile for the back office.
func (s *Service) All(ctx context.Context) ([]profile.Profile, error) {
	return s.store.ListProfiles(ctx)
}

// SetRole changes a user's role. Admins cannot demote themselves; that would
// lock the last admin out of the back office.
func (s *Service) SetRole(ctx context.Context, userID string, role profile.Role) (profile.Profile, error) {
	if !role.Valid() {
		return profile.Profile{}, fmt.Errorf("unknown role %q", role)
	}
	if userID == s.session.UserID() {
		return profile.Profile{}, fmt.Errorf("cannot change your own role")
	}

	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	p.Role = role
	updated, err := s.store.UpdateProfile(ctx, p)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("update role: %w", err)
	}

	s.logger.WithField("user_id", userID).WithField("role", string(role)).Info("role changed")
	return updated, nil
}
