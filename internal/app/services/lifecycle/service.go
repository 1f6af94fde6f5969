// Package lifecycle owns the shipment write path: validation, the
// ledger-then-store dual write, and the forward-only status progression.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainsight-labs/chainsight/internal/app/domain/shipment"
	"github.com/chainsight-labs/chainsight/internal/app/events"
	"github.com/chainsight-labs/chainsight/internal/app/metrics"
	"github.com/chainsight-labs/chainsight/internal/app/storage"
	"github.com/chainsight-labs/chainsight/internal/ledger"
	"github.com/chainsight-labs/chainsight/pkg/logger"
)

// Recorder is the subset of the ledger client the write path needs.
type Recorder interface {
	Enabled() bool
	RecordCreate(ctx context.Context, shipmentID, origin, destination, carrier string) (ledger.CreateReceipt, error)
	RecordStatusUpdate(ctx context.Context, shipmentID, status, location, notes string) (ledger.UpdateReceipt, error)
}

// Publisher receives lifecycle events for fan-out.
type Publisher interface {
	Publish(events.Event)
}

// casAttempts bounds the read-validate-swap loop on concurrent updates. The
// ledger write is never resubmitted inside the loop.
const casAttempts = 3

// storeTimeout bounds each individual store call.
const storeTimeout = 5 * time.Second

// CreateInput carries the caller-supplied fields of a new shipment.
type CreateInput struct {
	ShipmentID  string
	Origin      string
	Destination string
	Carrier     string
	Status      string
	ETA         string
	Temperature string
	Condition   string
}

// Warning reports a non-fatal degradation inside an otherwise successful
// operation, such as a failed best-effort ledger write.
type Warning struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

// Result is the outcome of a write operation. Warning is nil when the ledger
// write succeeded or the ledger is disabled.
type Result struct {
	Shipment shipment.Shipment
	Warning  *Warning
}

// Service implements the shipment write and read operations.
type Service struct {
	store     storage.ShipmentStore
	recorder  Recorder
	publisher Publisher
	log       *logger.Logger
}

// NewService wires the write path. recorder and publisher may be nil; a nil
// recorder behaves like a disabled ledger.
func NewService(store storage.ShipmentStore, recorder Recorder, publisher Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("lifecycle")
	}
	return &Service{
		store:     store,
		recorder:  recorder,
		publisher: publisher,
		log:       log,
	}
}

func (s *Service) ledgerEnabled() bool {
	return s.recorder != nil && s.recorder.Enabled()
}

func (s *Service) publish(event events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

// CreateShipment validates the input, records the creation on the ledger when
// available, then inserts the authoritative store record. A ledger failure
// degrades to a Warning; a store failure fails the whole operation.
func (s *Service) CreateShipment(ctx context.Context, in CreateInput) (Result, error) {
	in.ShipmentID = strings.TrimSpace(in.ShipmentID)
	in.Origin = strings.TrimSpace(in.Origin)
	in.Destination = strings.TrimSpace(in.Destination)
	in.Carrier = strings.TrimSpace(in.Carrier)

	if in.ShipmentID == "" {
		return Result{}, fmt.Errorf("%w: shipmentId is required", shipment.ErrValidation)
	}
	if in.Origin == "" {
		return Result{}, fmt.Errorf("%w: origin is required", shipment.ErrValidation)
	}
	if in.Destination == "" {
		return Result{}, fmt.Errorf("%w: destination is required", shipment.ErrValidation)
	}

	status := shipment.StatusCreated
	if in.Status != "" {
		parsed, err := shipment.ParseStatus(in.Status)
		if err != nil {
			return Result{}, err
		}
		status = parsed
	}

	// Cheap duplicate pre-check. The store's unique constraint remains the
	// real guarantee under concurrency.
	{
		findCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		_, err := s.store.FindByShipmentID(findCtx, in.ShipmentID)
		cancel()
		if err == nil {
			return Result{}, fmt.Errorf("%w: shipment %q already exists", shipment.ErrConflict, in.ShipmentID)
		}
		if !errors.Is(err, shipment.ErrNotFound) {
			return Result{}, err
		}
	}

	shp := shipment.Shipment{
		ShipmentID:  in.ShipmentID,
		Origin:      in.Origin,
		Destination: in.Destination,
		Carrier:     in.Carrier,
		Status:      status,
		ETA:         in.ETA,
		Temperature: in.Temperature,
		Condition:   in.Condition,
	}

	var warning *Warning
	if s.ledgerEnabled() {
		start := time.Now()
		receipt, err := s.recorder.RecordCreate(ctx, in.ShipmentID, in.Origin, in.Destination, in.Carrier)
		metrics.RecordLedgerWrite("create", time.Since(start), err == nil)
		if err != nil {
			s.log.WithError(err).
				WithField("shipment_id", in.ShipmentID).
				Warn("ledger create failed, continuing without record")
			warning = &Warning{Op: "ledger.create", Reason: err.Error()}
		} else {
			// The create event lives in LedgerRecordHash; StatusLedgerRefs
			// only ever collects status update transactions.
			shp.LedgerRecordHash = receipt.ContentHash
		}
	}

	insertCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	stored, err := s.store.Insert(insertCtx, shp)
	if err != nil {
		return Result{}, err
	}

	metrics.RecordShipmentCreated()
	s.publish(events.Event{
		Type:      events.TypeShipmentCreated,
		Shipment:  &stored,
		LedgerRef: stored.LedgerRecordHash,
	})
	s.log.WithField("shipment_id", stored.ShipmentID).
		WithField("status", string(stored.Status)).
		Info("shipment created")

	return Result{Shipment: stored, Warning: warning}, nil
}

// SetStatus moves a shipment to the given target status. The target must be
// strictly ahead of the current status. The ledger write happens at most
// once, before the store write; the store write is retried on concurrent
// interference as long as the transition remains valid.
func (s *Service) SetStatus(ctx context.Context, id string, target shipment.Status) (Result, error) {
	if !target.Valid() {
		return Result{}, fmt.Errorf("%w: unknown status %q", shipment.ErrValidation, string(target))
	}

	cur, err := s.findByID(ctx, id)
	if err != nil {
		return Result{}, err
	}

	if err := checkTransition(cur.Status, target); err != nil {
		return Result{}, err
	}

	var (
		warning   *Warning
		ledgerRef string
	)
	if s.ledgerEnabled() {
		start := time.Now()
		receipt, recErr := s.recorder.RecordStatusUpdate(ctx, cur.ShipmentID, string(target), "", "")
		metrics.RecordLedgerWrite("status_update", time.Since(start), recErr == nil)
		if recErr != nil {
			s.log.WithError(recErr).
				WithField("shipment_id", cur.ShipmentID).
				WithField("target", string(target)).
				Warn("ledger status update failed, continuing without record")
			warning = &Warning{Op: "ledger.status_update", Reason: recErr.Error()}
		} else {
			ledgerRef = receipt.TxRef
		}
	}

	updated, err := s.applyStatus(ctx, id, cur.Status, target, ledgerRef)
	if err != nil {
		return Result{}, err
	}

	metrics.RecordStatusTransition(string(target))
	s.publish(events.Event{
		Type:      events.TypeStatusChanged,
		Shipment:  &updated,
		LedgerRef: ledgerRef,
	})
	s.log.WithField("shipment_id", updated.ShipmentID).
		WithField("status", string(updated.Status)).
		Info("shipment status updated")

	return Result{Shipment: updated, Warning: warning}, nil
}

// applyStatus runs the compare-and-swap loop. On a stale read it re-reads and
// re-validates; the already-made ledger write is carried through unchanged.
func (s *Service) applyStatus(ctx context.Context, id string, from, target shipment.Status, ledgerRef string) (shipment.Shipment, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		updCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		updated, err := s.store.UpdateStatus(updCtx, id, from, target, ledgerRef)
		cancel()
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, shipment.ErrStaleStatus) {
			return shipment.Shipment{}, err
		}

		cur, readErr := s.findByID(ctx, id)
		if readErr != nil {
			return shipment.Shipment{}, readErr
		}
		if err := checkTransition(cur.Status, target); err != nil {
			return shipment.Shipment{}, err
		}
		from = cur.Status
	}
	return shipment.Shipment{}, fmt.Errorf("%w: status contention on shipment %s", shipment.ErrStaleStatus, id)
}

// AdvanceStatus moves a shipment to the next status in the progression.
func (s *Service) AdvanceStatus(ctx context.Context, id string) (Result, error) {
	cur, err := s.findByID(ctx, id)
	if err != nil {
		return Result{}, err
	}

	next, ok := cur.Status.Next()
	if !ok {
		return Result{}, fmt.Errorf("%w: shipment %s is %s", shipment.ErrTerminalState, cur.ShipmentID, string(cur.Status))
	}
	return s.SetStatus(ctx, id, next)
}

// GetShipment resolves a shipment by store id.
func (s *Service) GetShipment(ctx context.Context, id string) (shipment.Shipment, error) {
	return s.findByID(ctx, id)
}

// GetByShipmentID resolves a shipment by its business identifier.
func (s *Service) GetByShipmentID(ctx context.Context, shipmentID string) (shipment.Shipment, error) {
	findCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.store.FindByShipmentID(findCtx, shipmentID)
}

// ListShipments returns all shipments, newest first.
func (s *Service) ListShipments(ctx context.Context) ([]shipment.Shipment, error) {
	listCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.store.List(listCtx)
}

func (s *Service) findByID(ctx context.Context, id string) (shipment.Shipment, error) {
	findCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.store.FindByID(findCtx, id)
}

func checkTransition(from, to shipment.Status) error {
	if from.Terminal() {
		return fmt.Errorf("%w: shipment is %s", shipment.ErrTerminalState, string(from))
	}
	if !from.CanAdvanceTo(to) {
		return fmt.Errorf("%w: %s to %s", shipment.ErrInvalidTransition, string(from), string(to))
	}
	return nil
}
