// Package order holds the order domain model.
package order

import "time"

// Status of an order as it moves through fulfilment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// transitions lists the legal status moves. Cancellation is only possible
// before preparation starts.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is a placed order. ShippingAddress is copied from the profile at
// creation time and TotalAmount is fixed then; neither tracks later profile
// or catalog changes. ClientReference is a client-generated key that lets
// the backend deduplicate a retried submission.
type Order struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	TotalAmount     float64   `json:"total_amount"`
	PrescriptionID  string    `json:"prescription_id,omitempty"`
	ShippingAddress string    `json:"shipping_address"`
	ClientReference string    `json:"client_reference,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Items           []Item    `json:"items,omitempty"`
}

// Item is one order line. UnitPrice is the product price snapshotted when
// the order was placed; it never changes afterwards.
type Item struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}
