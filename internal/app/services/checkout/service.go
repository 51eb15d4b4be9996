// Package checkout turns the cart into a placed order, enforcing the
// prescription gate for restricted products.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaverte/storefront/internal/app/cart"
	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/session"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/pkg/logger"
)

var (
	// ErrEmptyCart is returned when checkout is attempted with nothing in
	// the cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotSignedIn is returned when no user is signed in.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrPrescriptionRequired is returned when the cart holds restricted
	// products and the user has no validated, unexpired prescription.
	ErrPrescriptionRequired = errors.New("valid prescription required")
)

// Recorder observes checkout outcomes. Implemented by the metrics package.
type Recorder interface {
	RecordCheckout(outcome string)
}

// Config wires the checkout service.
type Config struct {
	Cart          *cart.Cart
	Session       *session.Store
	Prescriptions storage.PrescriptionStore
	Orders        storage.OrderStore
	Recorder      Recorder
	Logger        *logger.Logger
	// Now is the clock used for prescription validity. Defaults to time.Now.
	Now func() time.Time
}

// Service submits orders.
type Service struct {
	cart          *cart.Cart
	session       *session.Store
	prescriptions storage.PrescriptionStore
	orders        storage.OrderStore
	recorder      Recorder
	logger        *logger.Logger
	now           func() time.Time
}

// New creates the service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("checkout")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		cart:          cfg.Cart,
		session:       cfg.Session,
		prescriptions: cfg.Prescriptions,
		orders:        cfg.Orders,
		recorder:      cfg.Recorder,
		logger:        log,
		now:           now,
	}
}

// Submit places an order for the current cart contents.
//
// The checks run in a fixed sequence: cart not empty, user signed in,
// prescription gate. When the cart holds restricted products the user must
// own at least one validated, unexpired prescription; the newest one is
// attached to the order. Unit prices are snapshotted from the cart lines.
// The cart is cleared only after the order is persisted, so a failed submit
// leaves it intact for a retry.
func (s *Service) Submit(ctx context.Context) (order.Order, error) {
	if s.cart.Empty() {
		return order.Order{}, s.reject(ErrEmptyCart)
	}

	userID := s.session.UserID()
	if userID == "" {
		return order.Order{}, s.reject(ErrNotSignedIn)
	}

	var prescriptionID string
	if s.cart.RequiresPrescription() {
		usable, err := s.prescriptions.ListUsablePrescriptions(ctx, userID, s.now())
		if err != nil {
			s.record("error")
			return order.Order{}, fmt.Errorf("check prescriptions: %w", err)
		}
		if len(usable) == 0 {
			return order.Order{}, s.reject(ErrPrescriptionRequired)
		}
		prescriptionID = usable[0].ID
	}

	var shipping string
	if p := s.session.Profile(); p != nil {
		shipping = p.Address
	}

	lines := s.cart.Lines()
	items := make([]order.Item, 0, len(lines))
	for _, line := range lines {
		items = append(items, order.Item{
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
		})
	}

	o := order.Order{
		UserID:          userID,
		TotalAmount:     s.cart.Total(),
		PrescriptionID:  prescriptionID,
		ShippingAddress: shipping,
		ClientReference: uuid.NewString(),
	}

	created, err := s.orders.CreateOrderWithItems(ctx, o, items)
	if err != nil {
		s.record("error")
		return order.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.cart.Clear()
	s.record("success")
	s.logger.WithField("order_id", created.ID).
		WithField("user_id", userID).
		WithField("total", created.TotalAmount).
		Info("order placed")
	return created, nil
}

func (s *Service) reject(err error) error {
	switch {
	case errors.Is(err, ErrEmptyCart):
		s.record("empty_cart")
	case errors.Is(err, ErrNotSignedIn):
		s.record("not_signed_in")
	case errors.Is(err, ErrPrescriptionRequired):
		s.record("prescription_required")
	}
	return err
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordCheckout(outcome)
	}
}
