// Package memory provides an in-memory ShipmentStore. It is safe for
// concurrent use and is primarily intended for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chainsight-labs/chainsight/internal/app/domain/shipment"
	"github.com/chainsight-labs/chainsight/internal/app/storage"
)

// Store keeps shipments in maps guarded by a single RWMutex. The mutex makes
// every UpdateStatus a transactional read-modify-write, which is what gives
// the compare-and-swap contract its meaning here.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	nextSeq   int64
	byID      map[string]shipment.Shipment
	idByBusID map[string]string
	seq       map[string]int64
}

var _ storage.ShipmentStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:    1,
		byID:      make(map[string]shipment.Shipment),
		idByBusID: make(map[string]string),
		seq:       make(map[string]int64),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func (s *Store) Insert(_ context.Context, shp shipment.Shipment) (shipment.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.idByBusID[shp.ShipmentID]; exists {
		return shipment.Shipment{}, fmt.Errorf("%w: %s", shipment.ErrConflict, shp.ShipmentID)
	}

	if shp.ID == "" {
		shp.ID = s.nextIDLocked()
	} else if _, exists := s.byID[shp.ID]; exists {
		return shipment.Shipment{}, fmt.Errorf("%w: id %s", shipment.ErrConflict, shp.ID)
	}

	now := time.Now().UTC()
	shp.CreatedAt = now
	shp.UpdatedAt = now
	shp.StatusLedgerRefs = cloneRefs(shp.StatusLedgerRefs)

	s.byID[shp.ID] = shp
	s.idByBusID[shp.ShipmentID] = shp.ID
	s.nextSeq++
	s.seq[shp.ID] = s.nextSeq
	return clone(shp), nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, from, to shipment.Status, ledgerRef string) (shipment.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shp, ok := s.byID[id]
	if !ok {
		return shipment.Shipment{}, fmt.Errorf("%w: id %s", shipment.ErrNotFound, id)
	}
	if shp.Status != from {
		return shipment.Shipment{}, fmt.Errorf("%w: expected %q, have %q", shipment.ErrStaleStatus, from, shp.Status)
	}

	shp.Status = to
	if ledgerRef != "" {
		shp.StatusLedgerRefs = append(cloneRefs(shp.StatusLedgerRefs), ledgerRef)
	}
	shp.UpdatedAt = time.Now().UTC()

	s.byID[id] = shp
	return clone(shp), nil
}

func (s *Store) FindByID(_ context.Context, id string) (shipment.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shp, ok := s.byID[id]
	if !ok {
		return shipment.Shipment{}, fmt.Errorf("%w: id %s", shipment.ErrNotFound, id)
	}
	return clone(shp), nil
}

func (s *Store) FindByShipmentID(_ context.Context, shipmentID string) (shipment.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idByBusID[shipmentID]
	if !ok {
		return shipment.Shipment{}, fmt.Errorf("%w: shipmentId %s", shipment.ErrNotFound, shipmentID)
	}
	return clone(s.byID[id]), nil
}

func (s *Store) List(_ context.Context) ([]shipment.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]shipment.Shipment, 0, len(s.byID))
	for _, shp := range s.byID {
		result = append(result, clone(shp))
	}
	// Newest-created first; the insert sequence breaks CreatedAt ties.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return s.seq[result[i].ID] > s.seq[result[j].ID]
	})
	return result, nil
}

func clone(shp shipment.Shipment) shipment.Shipment {
	shp.StatusLedgerRefs = cloneRefs(shp.StatusLedgerRefs)
	return shp
}

func cloneRefs(refs []string) []string {
	if refs == nil {
		return nil
	}
	out := make([]string, len(refs))
	copy(out, refs)
	return out
}
