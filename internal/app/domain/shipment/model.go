// Package shipment defines the shipment entity and its status lifecycle.
package shipment

import (
	"fmt"
	"time"
)

// Status is a point in the fixed shipment progression.
type Status string

const (
	StatusCreated        Status = "Created"
	StatusInTransit      Status = "In Transit"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
)

// statusOrder is the only permitted progression. Transitions move strictly
// forward along it; StatusDelivered is terminal.
var statusOrder = []Status{StatusCreated, StatusInTransit, StatusOutForDelivery, StatusDelivered}

// Statuses returns the ordered set of statuses.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, error) {
	for _, s := range statusOrder {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	return s.index() >= 0
}

func (s Status) index() int {
	for i, known := range statusOrder {
		if s == known {
			return i
		}
	}
	return -1
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusDelivered
}

// Next returns the following status in the progression. The second return is
// false when the status is terminal or unknown.
func (s Status) Next() (Status, bool) {
	idx := s.index()
	if idx < 0 || idx+1 >= len(statusOrder) {
		return "", false
	}
	return statusOrder[idx+1], true
}

// CanAdvanceTo reports whether target is strictly ahead of s in the
// progression. Self-transitions and regressions are rejected; skipping
// intermediate states forward is allowed.
func (s Status) CanAdvanceTo(target Status) bool {
	cur, tgt := s.index(), target.index()
	return cur >= 0 && tgt >= 0 && tgt > cur
}

// Shipment is the tracked entity. ID is assigned by the store on insert;
// ShipmentID is the caller-facing business identifier and is unique.
type Shipment struct {
	ID               string    `json:"id" db:"id"`
	ShipmentID       string    `json:"shipmentId" db:"shipment_id"`
	Origin           string    `json:"origin" db:"origin"`
	Destination      string    `json:"destination" db:"destination"`
	Carrier          string    `json:"carrier,omitempty" db:"carrier"`
	Status           Status    `json:"status" db:"status"`
	ETA              string    `json:"eta,omitempty" db:"eta"`
	Temperature      string    `json:"temperature,omitempty" db:"temperature"`
	Condition        string    `json:"condition,omitempty" db:"condition"`
	LedgerRecordHash string    `json:"ledgerRecordHash,omitempty" db:"ledger_record_hash"`
	StatusLedgerRefs []string  `json:"statusLedgerRefs" db:"-"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}
