// Package audit exposes the ledger-backed views of a shipment and runs the
// periodic integrity sweep that cross-checks stored hashes against the
// chain.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chainsight-labs/chainsight/internal/app/metrics"
	"github.com/chainsight-labs/chainsight/internal/app/storage"
	"github.com/chainsight-labs/chainsight/internal/ledger"
	"github.com/chainsight-labs/chainsight/pkg/logger"
)

// LedgerReader is the read side of the ledger client.
type LedgerReader interface {
	Enabled() bool
	FetchRecord(ctx context.Context, shipmentID string) (ledger.Record, error)
	FetchHistory(ctx context.Context, shipmentID string) ([]ledger.HistoryEntry, error)
	VerifyIntegrity(ctx context.Context, shipmentID string) (bool, error)
}

// Service answers on-chain questions about shipments.
type Service struct {
	store  storage.ShipmentStore
	reader LedgerReader
	log    *logger.Logger
}

// NewService wires the audit read path. reader may be nil, which behaves
// like a disabled ledger.
func NewService(store storage.ShipmentStore, reader LedgerReader, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("audit")
	}
	return &Service{store: store, reader: reader, log: log}
}

func (s *Service) enabled() bool {
	return s.reader != nil && s.reader.Enabled()
}

// Record returns the on-chain record for a shipment.
func (s *Service) Record(ctx context.Context, shipmentID string) (ledger.Record, error) {
	if !s.enabled() {
		return ledger.Record{}, ledger.ErrUnavailable
	}
	return s.reader.FetchRecord(ctx, shipmentID)
}

// History returns the on-chain status history for a shipment. The store is
// consulted first so unknown shipments fail fast with a domain error.
func (s *Service) History(ctx context.Context, shipmentID string) ([]ledger.HistoryEntry, error) {
	if !s.enabled() {
		return nil, ledger.ErrUnavailable
	}
	if _, err := s.store.FindByShipmentID(ctx, shipmentID); err != nil {
		return nil, err
	}
	return s.reader.FetchHistory(ctx, shipmentID)
}

// VerifyResult reports an integrity check outcome.
type VerifyResult struct {
	ShipmentID string `json:"shipmentId"`
	Valid      bool   `json:"valid"`
	StoredHash string `json:"storedHash,omitempty"`
}

// Verify cross-checks the shipment's stored content hash against the chain.
func (s *Service) Verify(ctx context.Context, shipmentID string) (VerifyResult, error) {
	if !s.enabled() {
		return VerifyResult{}, ledger.ErrUnavailable
	}

	shp, err := s.store.FindByShipmentID(ctx, shipmentID)
	if err != nil {
		return VerifyResult{}, err
	}

	valid, err := s.reader.VerifyIntegrity(ctx, shipmentID)
	if err != nil {
		metrics.RecordLedgerVerification("error")
		return VerifyResult{}, err
	}

	result := "valid"
	if !valid {
		result = "invalid"
		s.log.WithField("shipment_id", shipmentID).Warn("ledger integrity check failed")
	}
	metrics.RecordLedgerVerification(result)

	return VerifyResult{
		ShipmentID: shipmentID,
		Valid:      valid,
		StoredHash: shp.LedgerRecordHash,
	}, nil
}

// sweepTimeout bounds one full sweep run.
const sweepTimeout = 2 * time.Minute

// Sweeper periodically verifies every shipment that carries a ledger hash.
// It implements the application service lifecycle.
type Sweeper struct {
	audit    *Service
	schedule string
	cron     *cron.Cron
	log      *logger.Logger
}

// NewSweeper builds a sweeper with a cron schedule such as "@every 1h".
func NewSweeper(audit *Service, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("audit-sweeper")
	}
	return &Sweeper{audit: audit, schedule: schedule, log: log}
}

func (w *Sweeper) Name() string { return "audit-sweeper" }

// Start registers the cron entry. With a disabled ledger or an empty
// schedule the sweeper starts as a no-op.
func (w *Sweeper) Start(ctx context.Context) error {
	if w.schedule == "" || !w.audit.enabled() {
		w.log.Info("integrity sweep disabled")
		return nil
	}

	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.schedule, w.runSweep); err != nil {
		return fmt.Errorf("schedule %q: %w", w.schedule, err)
	}
	w.cron.Start()
	w.log.WithField("schedule", w.schedule).Info("integrity sweep scheduled")
	return nil
}

// Stop halts the cron scheduler and waits for a running sweep to finish.
func (w *Sweeper) Stop(ctx context.Context) error {
	if w.cron == nil {
		return nil
	}
	done := w.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	checked, invalid, err := w.Sweep(ctx)
	if err != nil {
		w.log.WithError(err).Warn("integrity sweep aborted")
		return
	}
	w.log.WithField("checked", checked).
		WithField("invalid", invalid).
		Info("integrity sweep complete")
}

// Sweep verifies every shipment with a ledger hash and returns how many were
// checked and how many failed verification.
func (w *Sweeper) Sweep(ctx context.Context) (checked, invalid int, err error) {
	shipments, err := w.audit.store.List(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, shp := range shipments {
		if shp.LedgerRecordHash == "" {
			continue
		}
		res, verr := w.audit.Verify(ctx, shp.ShipmentID)
		if verr != nil {
			if errors.Is(verr, ledger.ErrUnavailable) {
				return checked, invalid, verr
			}
			w.log.WithError(verr).
				WithField("shipment_id", shp.ShipmentID).
				Warn("integrity check errored")
			continue
		}
		checked++
		if !res.Valid {
			invalid++
		}
	}
	return checked, invalid, nil
}
