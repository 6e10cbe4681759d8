// Package dedup implements the two-level deduplication store: a bounded LRU
// cache of known content hashes in front of the persistent hash index.
//
// The persistent index is the single source of truth. The cache only saves
// round-trips; eviction can produce false misses, which fall through to the
// store, but never false hits.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/storage"
)

// DefaultCacheSize is the default bound on the hash cache.
const DefaultCacheSize = 5000

// Store is the two-level dedup store.
type Store struct {
	cache  *lru.Cache[string, struct{}]
	store  storage.EventStore
	logger *slog.Logger
}

// NewStore creates a dedup store over the given event store.
// cacheSize <= 0 selects DefaultCacheSize.
func NewStore(es storage.EventStore, cacheSize int, logger *slog.Logger) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, struct{}](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash cache: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		cache:  cache,
		store:  es,
		logger: logger,
	}, nil
}

// ExistsMany reports which of the given hashes are already recorded.
// Cache hits are answered locally; the misses go to the store in one bulk
// query, and every hash the store confirms is backfilled into the cache.
func (s *Store) ExistsMany(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})

	var misses []string
	for _, h := range hashes {
		if h == "" {
			continue
		}
		if s.cache.Contains(h) {
			found[h] = struct{}{}
		} else {
			misses = append(misses, h)
		}
	}

	if len(misses) == 0 {
		return found, nil
	}

	persisted, err := s.store.ExistingHashes(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing hashes: %w", err)
	}

	for h := range persisted {
		found[h] = struct{}{}
		s.cache.Add(h, struct{}{})
	}

	return found, nil
}

// Insert persists the event and its hash entry in a single store transaction.
// A hash that already exists is not an error: the existing event id is
// returned with inserted == false. The cache learns the hash either way.
func (s *Store) Insert(ctx context.Context, e *event.Event) (string, bool, error) {
	id, inserted, err := s.store.InsertEvent(ctx, e)
	if err != nil {
		return "", false, err
	}

	if e.ContentHash != "" {
		s.cache.Add(e.ContentHash, struct{}{})
	}

	if !inserted {
		s.logger.Debug("duplicate content suppressed",
			"content_hash", e.ContentHash,
			"existing_id", id,
		)
	}

	return id, inserted, nil
}

// InsertMany persists a batch of events in one store transaction,
// all-or-nothing, and adds their hashes to the cache on success.
func (s *Store) InsertMany(ctx context.Context, events []*event.Event) (int, error) {
	inserted, err := s.store.InsertEvents(ctx, events)
	if err != nil {
		return 0, err
	}

	s.AddKnown(events)

	return inserted, nil
}

// AddKnown backfills the cache with the hashes of the given events.
// Called by the batch pipeline's cleanup stage after a committed bulk insert.
func (s *Store) AddKnown(events []*event.Event) {
	for _, e := range events {
		if e != nil && e.ContentHash != "" {
			s.cache.Add(e.ContentHash, struct{}{})
		}
	}
}

// CacheLen returns the number of hashes currently cached.
func (s *Store) CacheLen() int {
	return s.cache.Len()
}

// PurgeCache drops every cached hash. The persistent index is untouched, so
// correctness is unaffected; subsequent lookups fall through to the store.
func (s *Store) PurgeCache() {
	s.cache.Purge()
}
