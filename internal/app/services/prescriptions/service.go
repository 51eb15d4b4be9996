// Package prescriptions handles prescription upload, review and status
// change notifications.
package prescriptions

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaverte/storefront/internal/app/domain/prescription"
	"github.com/pharmaverte/storefront/internal/app/session"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/pkg/logger"
)

// DefaultValidity is how long a validated prescription can cover orders.
const DefaultValidity = 30 * 24 * time.Hour

var (
	// ErrNotSignedIn is returned for operations that need a signed-in user.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrAlreadyReviewed is returned when a prescription was already
	// validated or rejected.
	ErrAlreadyReviewed = errors.New("prescription already reviewed")
)

// Uploader stores prescription documents. Implemented by the gateway's
// storage bucket.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	PublicURL(path string) string
}

// StatusFeed delivers prescription row changes. Implemented by the gateway's
// realtime client.
type StatusFeed interface {
	SubscribePrescriptions(userID string, handler func(prescription.Prescription)) (release func(), err error)
}

// Config wires the prescription service.
type Config struct {
	Store    storage.PrescriptionStore
	Uploader Uploader
	Feed     StatusFeed
	Session  *session.Store
	Logger   *logger.Logger
	// Validity overrides DefaultValidity when positive.
	Validity time.Duration
	// Now is the clock used for review timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Service manages prescriptions.
type Service struct {
	store    storage.PrescriptionStore
	uploader Uploader
	feed     StatusFeed
	session  *session.Store
	logger   *logger.Logger
	validity time.Duration
	now      func() time.Time
}

// New creates the service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("prescriptions")
	}
	validity := cfg.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    cfg.Store,
		uploader: cfg.Uploader,
		feed:     cfg.Feed,
		session:  cfg.Session,
		logger:   log,
		validity: validity,
		now:      now,
	}
}

// Upload stores the document and creates a pending prescription for the
// signed-in user. The stored object is keyed under the user's ID so bucket
// policies can scope access.
func (s *Service) Upload(ctx context.Context, fileName string, data []byte, contentType string) (prescription.Prescription, error) {
	userID := s.session.UserID()
	if userID == "" {
		return prescription.Prescription{}, ErrNotSignedIn
	}
	if len(data) == 0 {
		return prescription.Prescription{}, fmt.Errorf("document is empty")
	}

	ext := path.Ext(fileName)
	objectPath := userID + "/" + uuid.NewString() + ext
	if err := s.uploader.Upload(ctx, objectPath, data, contentType); err != nil {
		return prescription.Prescription{}, fmt.Errorf("upload document: %w", err)
	}

	created, err := s.store.CreatePrescription(ctx, prescription.Prescription{
		UserID:  userID,
		FileURL: s.uploader.PublicURL(objectPath),
	})
	if err != nil {
		return prescription.Prescription{}, fmt.Errorf("create prescription: %w", err)
	}

	s.logger.WithField("prescription_id", created.ID).
		WithField("user_id", userID).
		Info("prescription uploaded")
	return created, nil
}

// Mine lists the signed-in user's prescriptions, newest first.
func (s *Service) Mine(ctx context.Context) ([]prescription.Prescription, error) {
	userID := s.session.UserID()
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	return s.store.ListPrescriptionsForUser(ctx, userID)
}

// Pending lists prescriptions awaiting review.
func (s *Service) Pending(ctx context.Context) ([]prescription.Prescription, error) {
	return s.store.ListPrescriptionsByStatus(ctx, prescription.StatusPending)
}

// Review validates or rejects a pending prescription. Approval records the
// reviewer and stamps the validity window; a rejection carries neither. A
// prescription can only be reviewed once.
func (s *Service) Review(ctx context.Context, id string, approve bool, reviewerID, notes string) (prescription.Prescription, error) {
	if strings.TrimSpace(reviewerID) == "" {
		return prescription.Prescription{}, fmt.Errorf("reviewer id is required")
	}

	p, err := s.store.GetPrescription(ctx, id)
	if err != nil {
		return prescription.Prescription{}, err
	}
	if p.Status != prescription.StatusPending {
		return prescription.Prescription{}, ErrAlreadyReviewed
	}

	p.Notes = notes
	if approve {
		p.Status = prescription.StatusValidated
		p.ValidatedBy = reviewerID
		until := s.now().Add(s.validity)
		p.ValidUntil = &until
	} else {
		p.Status = prescription.StatusRejected
	}

	updated, err := s.store.UpdatePrescription(ctx, p)
	if err != nil {
		return prescription.Prescription{}, fmt.Errorf("update prescription: %w", err)
	}

	s.logger.WithField("prescription_id", updated.ID).
		WithField("status", string(updated.Status)).
		Info("prescription reviewed")
	return updated, nil
}

// WatchStatus subscribes to status changes for the signed-in user's
// prescriptions. The returned release func tears the subscription down.
func (s *Service) WatchStatus(handler func(prescription.Prescription)) (func(), error) {
	userID := s.session.UserID()
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	if s.feed == nil {
		return nil, fmt.Errorf("status feed is not configured")
	}
	return s.feed.SubscribePrescriptions(userID, handler)
}
