package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/chainsight-labs/chainsight/internal/app/domain/shipment"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func shipmentColumns() []string {
	return []string{
		"id", "shipment_id", "origin", "destination", "carrier", "status",
		"eta", "temperature", "condition", "ledger_record_hash",
		"status_ledger_refs", "created_at", "updated_at",
	}
}

func TestInsertGeneratesID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO shipments").
		WithArgs(sqlmock.AnyArg(), "SHP-1", "Oslo", "Bergen", "DHL", "Created",
			"", "", "", "", pq.StringArray(nil), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, err := store.Insert(context.Background(), shipment.Shipment{
		ShipmentID:  "SHP-1",
		Origin:      "Oslo",
		Destination: "Bergen",
		Carrier:     "DHL",
		Status:      shipment.StatusCreated,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("no id assigned")
	}
	if stored.CreatedAt.IsZero() || stored.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO shipments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "shipments_shipment_id_key"})

	_, err := store.Insert(context.Background(), shipment.Shipment{ShipmentID: "SHP-1", Status: shipment.StatusCreated})
	if !errors.Is(err, shipment.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestInsertOtherErrorIsPersistence(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO shipments").
		WillReturnError(errors.New("connection reset"))

	_, err := store.Insert(context.Background(), shipment.Shipment{ShipmentID: "SHP-1", Status: shipment.StatusCreated})
	if !errors.Is(err, shipment.ErrPersistence) {
		t.Fatalf("error = %v, want ErrPersistence", err)
	}
}

func TestUpdateStatusSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(shipmentColumns()).
		AddRow("abc", "SHP-1", "Oslo", "Bergen", "DHL", "In Transit",
			"", "", "", "0xhash", "{0xref1}", now, now)
	mock.ExpectQuery("UPDATE shipments").
		WithArgs("abc", "Created", "In Transit", "0xref1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	updated, err := store.UpdateStatus(context.Background(), "abc", shipment.StatusCreated, shipment.StatusInTransit, "0xref1")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != shipment.StatusInTransit {
		t.Fatalf("status = %q", updated.Status)
	}
	if len(updated.StatusLedgerRefs) != 1 || updated.StatusLedgerRefs[0] != "0xref1" {
		t.Fatalf("refs = %v", updated.StatusLedgerRefs)
	}
}

func TestUpdateStatusStale(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	// Zero rows matched: the follow-up read shows the shipment still exists,
	// so the caller lost a race rather than targeting a missing id.
	mock.ExpectQuery("UPDATE shipments").
		WillReturnRows(sqlmock.NewRows(shipmentColumns()))
	mock.ExpectQuery("SELECT .+ FROM shipments WHERE id").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(shipmentColumns()).
			AddRow("abc", "SHP-1", "Oslo", "Bergen", "DHL", "In Transit",
				"", "", "", "", "{}", now, now))

	_, err := store.UpdateStatus(context.Background(), "abc", shipment.StatusCreated, shipment.StatusOutForDelivery, "")
	if !errors.Is(err, shipment.ErrStaleStatus) {
		t.Fatalf("error = %v, want ErrStaleStatus", err)
	}
}

func TestUpdateStatusMissingShipment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE shipments").
		WillReturnRows(sqlmock.NewRows(shipmentColumns()))
	mock.ExpectQuery("SELECT .+ FROM shipments WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(shipmentColumns()))

	_, err := store.UpdateStatus(context.Background(), "missing", shipment.StatusCreated, shipment.StatusInTransit, "")
	if !errors.Is(err, shipment.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestFindByShipmentID(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM shipments WHERE shipment_id").
		WithArgs("SHP-1").
		WillReturnRows(sqlmock.NewRows(shipmentColumns()).
			AddRow("abc", "SHP-1", "Oslo", "Bergen", "DHL", "Created",
				"2026-09-05", "4C", "Fragile", "", "{}", now, now))

	got, err := store.FindByShipmentID(context.Background(), "SHP-1")
	if err != nil {
		t.Fatalf("FindByShipmentID: %v", err)
	}
	if got.ID != "abc" || got.ETA != "2026-09-05" || got.Condition != "Fragile" {
		t.Fatalf("got = %+v", got)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM shipments WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(shipmentColumns()))

	_, err := store.FindByID(context.Background(), "missing")
	if !errors.Is(err, shipment.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM shipments ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(shipmentColumns()).
			AddRow("b", "SHP-2", "Oslo", "Bergen", "", "Created", "", "", "", "", "{}", now, now).
			AddRow("a", "SHP-1", "Oslo", "Bergen", "", "Delivered", "", "", "", "", "{0xr1,0xr2}", now.Add(-time.Hour), now))

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ShipmentID != "SHP-2" {
		t.Fatalf("list = %+v", list)
	}
	if len(list[1].StatusLedgerRefs) != 2 {
		t.Fatalf("refs = %v", list[1].StatusLedgerRefs)
	}
}
