package shipment

import "errors"

// Domain errors returned by the stores and the lifecycle engine. Callers
// classify failures with errors.Is; wrapped messages carry the detail.
var (
	// ErrValidation indicates bad caller input (missing or unknown fields).
	ErrValidation = errors.New("shipment: invalid input")

	// ErrConflict indicates the shipmentId is already taken.
	ErrConflict = errors.New("shipment: shipment id already exists")

	// ErrNotFound indicates the identifier resolves to no shipment.
	ErrNotFound = errors.New("shipment: not found")

	// ErrInvalidTransition indicates the target status is not strictly
	// ahead of the current status.
	ErrInvalidTransition = errors.New("shipment: invalid status transition")

	// ErrTerminalState indicates the shipment is already delivered.
	ErrTerminalState = errors.New("shipment: already delivered")

	// ErrStaleStatus indicates a concurrent writer changed the status
	// between validation and the compare-and-swap write.
	ErrStaleStatus = errors.New("shipment: status changed concurrently")

	// ErrPersistence indicates the store itself failed. Fatal to the
	// operation, unlike ledger-side degradation.
	ErrPersistence = errors.New("shipment: store failure")
)
