// Package storage defines the persistence interfaces for shipment records.
package storage

import (
	"context"

	"github.com/chainsight-labs/chainsight/internal/app/domain/shipment"
)

// ShipmentStore persists shipment records with a uniqueness guarantee on the
// business shipmentId. Implementations return the shipment domain errors
// (shipment.ErrConflict, shipment.ErrNotFound, shipment.ErrStaleStatus).
type ShipmentStore interface {
	// Insert stores a new shipment, assigning the store id and timestamps.
	Insert(ctx context.Context, shp shipment.Shipment) (shipment.Shipment, error)

	// UpdateStatus applies a compare-and-swap status transition: the write
	// succeeds only while the stored status still equals from. A non-empty
	// ledgerRef is appended to the ref list in the same atomic write.
	UpdateStatus(ctx context.Context, id string, from, to shipment.Status, ledgerRef string) (shipment.Shipment, error)

	// FindByID resolves a shipment by its store-assigned identifier.
	FindByID(ctx context.Context, id string) (shipment.Shipment, error)

	// FindByShipmentID resolves a shipment by its business identifier.
	FindByShipmentID(ctx context.Context, shipmentID string) (shipment.Shipment, error)

	// List returns all shipments, newest-created first.
	List(ctx context.Context) ([]shipment.Shipment, error)
}
