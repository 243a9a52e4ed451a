// Package store keeps the in-memory last-known-good snapshot of each
// restaurant's synchronized data.
package store

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/varunkan/ai-pos-system-sub011/internal/model"
)

// ErrNotFound is returned when a restaurant has no store entry.
var ErrNotFound = errors.New("restaurant not found")

// ErrUnknownDataType is returned for changes naming a collection the relay
// does not track. The store performs no mutation in that case.
var ErrUnknownDataType = errors.New("unknown data type")

// ErrMissingEntityID is returned for changes whose payload carries no id.
var ErrMissingEntityID = errors.New("change has no entity id")

// collections is every synchronized collection for one restaurant, keyed by
// data type, then by entity id.
type collections map[model.DataType]map[string]model.Record

// Store owns the restaurant-to-data mapping. Entries are created lazily on
// first connection or first sync and dropped by Evict.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]collections
	logger  *zap.Logger
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	return &Store{
		tenants: make(map[string]collections),
		logger:  logger,
	}
}

// EnsureTenant lazily creates the store entry for a restaurant. Called when
// a device connects so a restaurant with live connections always has an
// entry, even before its first sync.
func (s *Store) EnsureTenant(restaurantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(restaurantID)
}

func (s *Store) ensureLocked(restaurantID string) collections {
	data, ok := s.tenants[restaurantID]
	if !ok {
		data = make(collections, len(model.AllDataTypes))
		for _, dt := range model.AllDataTypes {
			data[dt] = make(map[string]model.Record)
		}
		s.tenants[restaurantID] = data
	}
	return data
}

// ApplyChange applies one change to a restaurant's data. Upsert variants
// insert-or-replace the record by id and stamp last_sync; a delete removes
// the id if present and is a no-op otherwise. Changes naming an unknown
// collection or carrying no id leave the store untouched and return a
// sentinel error for the caller to decide how loudly to fail.
func (s *Store) ApplyChange(restaurantID string, ch model.Change) error {
	dataType, ok := model.ParseDataType(ch.DataType)
	if !ok {
		return ErrUnknownDataType
	}
	id := ch.EntityID()
	if id == "" {
		return ErrMissingEntityID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.ensureLocked(restaurantID)
	records := data[dataType]

	if model.Action(ch.Action).IsDelete() {
		delete(records, id)
		return nil
	}

	fields := make(map[string]interface{}, len(ch.Data))
	for k, v := range ch.Data {
		fields[k] = v
	}
	records[id] = model.Record{
		ID:       id,
		Fields:   fields,
		LastSync: time.Now(),
	}
	return nil
}

// Snapshot returns a point-in-time copy of every collection for a
// restaurant, or ErrNotFound if it has no store entry. All collections are
// present in the result even when empty.
func (s *Store) Snapshot(restaurantID string) (map[model.DataType]map[string]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.tenants[restaurantID]
	if !ok {
		return nil, ErrNotFound
	}

	out := make(map[model.DataType]map[string]model.Record, len(data))
	for dt, records := range data {
		copied := make(map[string]model.Record, len(records))
		for id, rec := range records {
			copied[id] = rec.Clone()
		}
		out[dt] = copied
	}
	return out, nil
}

// Evict drops a restaurant's entire store entry. Wired to the registry's
// last-disconnect hook when destructive eviction is enabled.
func (s *Store) Evict(restaurantID string) {
	s.mu.Lock()
	_, existed := s.tenants[restaurantID]
	delete(s.tenants, restaurantID)
	s.mu.Unlock()

	if existed {
		s.logger.Info("restaurant data evicted", zap.String("restaurant_id", restaurantID))
	}
}

// Has reports whether a restaurant currently has a store entry.
func (s *Store) Has(restaurantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tenants[restaurantID]
	return ok
}
