// Package storage
package storage

import (
	"context"

	"github.com/papercomputeco/engram/pkg/event"
)

// EventStore defines the interface for persisting and retrieving episodic
// events. The store is the correctness boundary for deduplication: it holds a
// unique index on content hash, answers bulk existence queries in a single
// round-trip, and provides transactional all-or-nothing bulk insert.
type EventStore interface {
	// InsertEvent persists a single event together with its dedup entry in
	// one transaction. Returns the event id and true when newly inserted.
	// A unique-constraint hit on the content hash is not an error: the
	// existing event's id is returned with inserted == false.
	InsertEvent(ctx context.Context, e *event.Event) (string, bool, error)

	// InsertEvents persists a batch of events and their dedup entries in one
	// transaction. All-or-nothing: on error no event of the batch is visible.
	// Returns the number of events inserted.
	InsertEvents(ctx context.Context, events []*event.Event) (int, error)

	// ExistingHashes reports which of the given content hashes are already
	// recorded, using a single bulk query rather than N lookups.
	ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)

	// GetEvent retrieves an event by its id.
	GetEvent(ctx context.Context, id string) (*event.Event, error)

	// GetEventByHash retrieves an event by its content hash.
	GetEventByHash(ctx context.Context, hash string) (*event.Event, error)

	// Close closes the store and releases any resources.
	Close() error
}
