// Package prescription holds the prescription domain model.
package prescription

import "time"

// Status of a prescription review. A row starts pending and moves exactly
// once, to validated or rejected.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusRejected:
		return true
	}
	return false
}

// Prescription is an uploaded prescription document and its review state.
// ValidUntil and ValidatedBy are set only on validated rows.
type Prescription struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	FileURL     string     `json:"file_url"`
	Status      Status     `json:"status"`
	ValidatedBy string     `json:"validated_by,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Usable reports whether the prescription can cover an order at the given
// instant: validated and not yet expired.
func (p Prescription) Usable(now time.Time) bool {
	return p.Status == StatusValidated && p.ValidUntil != nil && !p.ValidUntil.Before(now)
}
