// Package postgres provides a PostgreSQL-backed EventStore using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/storage"
)

// Store implements storage.EventStore using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL-backed event store and runs migrations.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	s := &Store{pool: pool}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		event_type TEXT NOT NULL,
		content TEXT NOT NULL,
		context JSONB,
		outcome TEXT,
		confidence DOUBLE PRECISION,
		duration_ms BIGINT,
		content_hash TEXT,
		consolidation_status TEXT NOT NULL DEFAULT 'pending',
		embedding JSONB,
		created_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS dedup_entries (
		content_hash TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id),
		inserted_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// InsertEvent persists one event and its dedup entry in a single transaction.
func (s *Store) InsertEvent(ctx context.Context, e *event.Event) (string, bool, error) {
	var (
		id       string
		inserted bool
	)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		id, inserted, err = insertInTx(ctx, tx, e)
		return err
	})
	if err != nil {
		return "", false, err
	}

	return id, inserted, nil
}

// InsertEvents persists a batch of events in one transaction, all-or-nothing.
func (s *Store) InsertEvents(ctx context.Context, events []*event.Event) (int, error) {
	inserted := 0

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, e := range events {
			_, ok, err := insertInTx(ctx, tx, e)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// insertInTx claims the dedup entry with ON CONFLICT DO NOTHING; a skipped
// claim means the hash is already recorded and resolves to the existing id.
func insertInTx(ctx context.Context, tx pgx.Tx, e *event.Event) (string, bool, error) {
	if e == nil {
		return "", false, errors.New("cannot store nil event")
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

	if e.ContentHash != "" {
		tag, err := tx.Exec(ctx,
			`INSERT INTO dedup_entries (content_hash, event_id) VALUES ($1, $2)
			 ON CONFLICT (content_hash) DO NOTHING`,
			e.ContentHash, e.ID)
		if err != nil {
			return "", false, fmt.Errorf("failed to insert dedup entry: %w", err)
		}

		if tag.RowsAffected() == 0 {
			var existing string
			err := tx.QueryRow(ctx,
				`SELECT event_id FROM dedup_entries WHERE content_hash = $1`,
				e.ContentHash).Scan(&existing)
			if err != nil {
				return "", false, fmt.Errorf("failed to resolve existing event: %w", err)
			}
			return existing, false, nil
		}
	}

	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal context: %w", err)
	}

	var embeddingJSON []byte
	if e.Embedding != nil {
		embeddingJSON, err = json.Marshal(e.Embedding)
		if err != nil {
			return "", false, fmt.Errorf("failed to marshal embedding: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO events (
			id, project_id, session_id, timestamp, event_type, content,
			context, outcome, confidence, duration_ms, content_hash,
			consolidation_status, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.ProjectID, e.SessionID, e.Timestamp.UTC(), string(e.EventType),
		e.Content, contextJSON, nullableString(string(e.Outcome)), e.Confidence,
		e.DurationMs, nullableString(e.ContentHash), e.ConsolidationStatus,
		embeddingJSON)
	if err != nil {
		return "", false, fmt.Errorf("failed to insert event: %w", err)
	}

	return e.ID, true, nil
}

// ExistingHashes reports which of the given hashes are already recorded,
// in one round-trip via ANY($1).
func (s *Store) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(hashes) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT content_hash FROM dedup_entries WHERE content_hash = ANY($1)`,
		hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		found[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return found, nil
}

// GetEvent retrieves an event by its id.
func (s *Store) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, selectEvent+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}

	return e, err
}

// GetEventByHash retrieves an event by its content hash.
func (s *Store) GetEventByHash(ctx context.Context, hash string) (*event.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, selectEvent+` WHERE content_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.NotFoundError{Hash: hash}
	}

	return e, err
}

const selectEvent = `
	SELECT id, project_id, session_id, timestamp, event_type, content,
	       context, outcome, confidence, duration_ms, content_hash,
	       consolidation_status, embedding
	FROM events`

func scanEvent(row pgx.Row) (*event.Event, error) {
	var (
		e             event.Event
		eventType     string
		outcome       *string
		contextJSON   []byte
		contentHash   *string
		embeddingJSON []byte
	)

	err := row.Scan(&e.ID, &e.ProjectID, &e.SessionID, &e.Timestamp, &eventType,
		&e.Content, &contextJSON, &outcome, &e.Confidence, &e.DurationMs,
		&contentHash, &e.ConsolidationStatus, &embeddingJSON)
	if err != nil {
		return nil, err
	}

	e.EventType = event.Type(eventType)
	if outcome != nil {
		e.Outcome = event.Outcome(*outcome)
	}
	if contentHash != nil {
		e.ContentHash = *contentHash
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}
	if len(embeddingJSON) > 0 {
		if err := json.Unmarshal(embeddingJSON, &e.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
	}

	return &e, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ensure Store implements storage.EventStore
var _ storage.EventStore = (*Store)(nil)
