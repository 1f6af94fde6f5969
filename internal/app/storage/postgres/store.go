// Package postgres implements the ShipmentStore backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/chainsight-labs/chainsight/internal/app/domain/shipment"
	"github.com/chainsight-labs/chainsight/internal/app/storage"
)

// Store implements storage.ShipmentStore on a sqlx database handle.
type Store struct {
	db *sqlx.DB
}

var _ storage.ShipmentStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// row mirrors the shipments table. The ledger ref array needs pq.StringArray
// so it cannot ride on the domain struct directly.
type row struct {
	ID               string         `db:"id"`
	ShipmentID       string         `db:"shipment_id"`
	Origin           string         `db:"origin"`
	Destination      string         `db:"destination"`
	Carrier          string         `db:"carrier"`
	Status           string         `db:"status"`
	ETA              string         `db:"eta"`
	Temperature      string         `db:"temperature"`
	Condition        string         `db:"condition"`
	LedgerRecordHash string         `db:"ledger_record_hash"`
	StatusLedgerRefs pq.StringArray `db:"status_ledger_refs"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r row) toDomain() shipment.Shipment {
	return shipment.Shipment{
		ID:               r.ID,
		ShipmentID:       r.ShipmentID,
		Origin:           r.Origin,
		Destination:      r.Destination,
		Carrier:          r.Carrier,
		Status:           shipment.Status(r.Status),
		ETA:              r.ETA,
		Temperature:      r.Temperature,
		Condition:        r.Condition,
		LedgerRecordHash: r.LedgerRecordHash,
		StatusLedgerRefs: []string(r.StatusLedgerRefs),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

const selectColumns = `id, shipment_id, origin, destination, carrier, status, eta, temperature, condition, ledger_record_hash, status_ledger_refs, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, shp shipment.Shipment) (shipment.Shipment, error) {
	if shp.ID == "" {
		shp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	shp.CreatedAt = now
	shp.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (id, shipment_id, origin, destination, carrier, status, eta, temperature, condition, ledger_record_hash, status_ledger_refs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, shp.ID, shp.ShipmentID, shp.Origin, shp.Destination, shp.Carrier, string(shp.Status),
		shp.ETA, shp.Temperature, shp.Condition, shp.LedgerRecordHash,
		pq.StringArray(shp.StatusLedgerRefs), shp.CreatedAt, shp.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return shipment.Shipment{}, fmt.Errorf("%w: %s", shipment.ErrConflict, shp.ShipmentID)
		}
		return shipment.Shipment{}, fmt.Errorf("%w: insert: %v", shipment.ErrPersistence, err)
	}
	return shp, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, from, to shipment.Status, ledgerRef string) (shipment.Shipment, error) {
	var r row
	// The status predicate makes this a compare-and-swap: a concurrent
	// transition after the caller's read leaves zero rows matched.
	err := s.db.QueryRowxContext(ctx, `
		UPDATE shipments
		SET status = $3,
		    status_ledger_refs = CASE WHEN $4 = '' THEN status_ledger_refs ELSE array_append(status_ledger_refs, $4) END,
		    updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING `+selectColumns+`
	`, id, string(from), string(to), ledgerRef, time.Now().UTC()).StructScan(&r)
	if err == nil {
		return r.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return shipment.Shipment{}, fmt.Errorf("%w: update status: %v", shipment.ErrPersistence, err)
	}

	// Distinguish a vanished id from a lost race.
	current, ferr := s.FindByID(ctx, id)
	if ferr != nil {
		return shipment.Shipment{}, ferr
	}
	return shipment.Shipment{}, fmt.Errorf("%w: expected %q, have %q", shipment.ErrStaleStatus, from, current.Status)
}

func (s *Store) FindByID(ctx context.Context, id string) (shipment.Shipment, error) {
	return s.findOne(ctx, `SELECT `+selectColumns+` FROM shipments WHERE id = $1`, id)
}

func (s *Store) FindByShipmentID(ctx context.Context, shipmentID string) (shipment.Shipment, error) {
	return s.findOne(ctx, `SELECT `+selectColumns+` FROM shipments WHERE shipment_id = $1`, shipmentID)
}

func (s *Store) findOne(ctx context.Context, query, arg string) (shipment.Shipment, error) {
	var r row
	if err := s.db.GetContext(ctx, &r, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shipment.Shipment{}, fmt.Errorf("%w: %s", shipment.ErrNotFound, arg)
		}
		return shipment.Shipment{}, fmt.Errorf("%w: query: %v", shipment.ErrPersistence, err)
	}
	return r.toDomain(), nil
}

func (s *Store) List(ctx context.Context) ([]shipment.Shipment, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+selectColumns+` FROM shipments ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", shipment.ErrPersistence, err)
	}

	result := make([]shipment.Shipment, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
