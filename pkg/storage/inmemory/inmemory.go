// Package inmemory provides a map-backed EventStore for tests and ephemeral mode.
package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/storage"
)

// Store implements storage.EventStore using in-memory maps.
type Store struct {
	// mu guards both maps; InsertEvents holds it across the whole batch to
	// get the same all-or-nothing visibility a database transaction gives.
	mu sync.RWMutex

	// byID maps event id to event.
	byID map[string]*event.Event

	// byHash maps content hash to event id, standing in for the unique index.
	byHash map[string]string
}

// NewStore creates a new in-memory event store.
func NewStore() *Store {
	return &Store{
		byID:   make(map[string]*event.Event),
		byHash: make(map[string]string),
	}
}

// InsertEvent persists one event. A content-hash collision returns the
// existing id with inserted == false.
func (s *Store) InsertEvent(_ context.Context, e *event.Event) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(e)
}

// InsertEvents persists a batch of events all-or-nothing.
func (s *Store) InsertEvents(_ context.Context, events []*event.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before touching the maps.
	for _, e := range events {
		if e == nil {
			return 0, errors.New("cannot store nil event")
		}
	}

	inserted := 0
	for _, e := range events {
		_, ok, err := s.insertLocked(e)
		if err != nil {
			return 0, err
		}
		if ok {
			inserted++
		}
	}

	return inserted, nil
}

func (s *Store) insertLocked(e *event.Event) (string, bool, error) {
	if e == nil {
		return "", false, errors.New("cannot store nil event")
	}

	if e.ContentHash != "" {
		if existing, ok := s.byHash[e.ContentHash]; ok {
			return existing, false, nil
		}
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ConsolidationStatus == "" {
		e.ConsolidationStatus = event.StatusPending
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	s.byID[e.ID] = e
	if e.ContentHash != "" {
		s.byHash[e.ContentHash] = e.ID
	}

	return e.ID, true, nil
}

// ExistingHashes reports which of the given hashes are already recorded.
func (s *Store) ExistingHashes(_ context.Context, hashes []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]struct{})
	for _, h := range hashes {
		if _, ok := s.byHash[h]; ok {
			found[h] = struct{}{}
		}
	}

	return found, nil
}

// GetEvent retrieves an event by its id.
func (s *Store) GetEvent(_ context.Context, id string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return e, nil
}

// GetEventByHash retrieves an event by its content hash.
func (s *Store) GetEventByHash(_ context.Context, hash string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, storage.NotFoundError{Hash: hash}
	}

	return s.byID[id], nil
}

// Len returns the number of stored events. Used by tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byID)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Ensure Store implements storage.EventStore
var _ storage.EventStore = (*Store)(nil)
