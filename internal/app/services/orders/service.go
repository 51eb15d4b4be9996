// Package orders serves order history and back-office fulfilment.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/session"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/pkg/logger"
)

var (
	// ErrNotSignedIn is returned for operations that need a signed-in user.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrForbidden is returned when a user reads an order they do not own.
	ErrForbidden = errors.New("order belongs to another user")
	// ErrInvalidTransition is returned for a status move the fulfilment
	// flow does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Config wires the order service.
type Config struct {
	Store   storage.OrderStore
	Session *session.Store
	Logger  *logger.Logger
}

// Service reads and advances orders.
type Service struct {
	store   storage.OrderStore
	session *session.Store
	logger  *logger.Logger
}

// New creates the service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("orders")
	}
	return &Service{store: cfg.Store, session: cfg.Session, logger: log}
}

// Mine lists the signed-in user's orders, newest first.
func (s *Service) Mine(ctx context.Context) ([]order.Order, error) {
	userID := s.session.UserID()
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	return s.store.ListOrdersForUser(ctx, userID)
}

// Get fetches one order. Customers can only read their own orders; staff and
// admin profiles can read any.
func (s *Service) Get(ctx context.Context, id string) (order.Order, error) {
	userID := s.session.UserID()
	if userID == "" {
		return order.Order{}, ErrNotSignedIn
	}

	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if o.UserID != userID && !s.backOffice() {
		return order.Order{}, ErrForbidden
	}
	return o, nil
}

// All lists every order for the back office.
func (s *Service) All(ctx context.Context) ([]order.Order, error) {
	return s.store.ListOrders(ctx)
}

// Advance moves an order to the next fulfilment status. Illegal moves are
// rejected before touching the store.
func (s *Service) Advance(ctx context.Context, id string, to order.Status) (order.Order, error) {
	if !to.Valid() {
		return order.Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	current, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if !order.CanTransition(current.Status, to) {
		return order.Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}

	updated, err := s.store.UpdateOrderStatus(ctx, id, to)
	if err != nil {
		return order.Order{}, fmt.Errorf("update status: %w", err)
	}

	s.logger.WithField("order_id", id).
		WithField("from", string(current.Status)).
		WithField("to", string(to)).
		Info("order status advanced")
	return updated, nil
}

func (s *Service) backOffice() bool {
	p := s.session.Profile()
	return p != nil && (p.Role == profile.RoleStaff || p.Role == profile.RoleAdmin)
}
