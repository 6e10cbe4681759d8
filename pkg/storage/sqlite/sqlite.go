// Package sqlite provides a SQLite-backed EventStore.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/storage"
)

// maxQueryParams bounds the number of bound parameters per statement, staying
// under SQLite's default variable limit of 999.
const maxQueryParams = 500

// Store implements storage.EventStore using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite-backed event store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		content TEXT NOT NULL,
		context TEXT,
		outcome TEXT,
		confidence REAL,
		duration_ms INTEGER,
		content_hash TEXT,
		consolidation_status TEXT NOT NULL DEFAULT 'pending',
		embedding TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS dedup_entries (
		content_hash TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id),
		inserted_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	`

	_, err := s.db.Exec(schema)
	return err
}

// InsertEvent persists one event and its dedup entry in a single transaction.
// A unique-constraint hit on the content hash maps to "already recorded".
func (s *Store) InsertEvent(ctx context.Context, e *event.Event) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, inserted, err := s.insertInTx(ctx, tx, e)
	if err != nil {
		return "", false, err
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit: %w", err)
	}

	return id, inserted, nil
}

// InsertEvents persists a batch of events in one transaction, all-or-nothing.
func (s *Store) InsertEvents(ctx context.Context, events []*event.Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, e := range events {
		_, ok, err := s.insertInTx(ctx, tx, e)
		if err != nil {
			return 0, err
		}
		if ok {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	return inserted, nil
}

// insertInTx claims the dedup entry first; INSERT OR IGNORE makes the claim
// idempotent, and zero rows affected means the hash is already recorded.
func (s *Store) insertInTx(ctx context.Context, tx *sql.Tx, e *event.Event) (string, bool, error) {
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
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO dedup_entries (content_hash, event_id) VALUES (?, ?)`,
			e.ContentHash, e.ID)
		if err != nil {
			return "", false, fmt.Errorf("failed to insert dedup entry: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return "", false, fmt.Errorf("failed to read rows affected: %w", err)
		}

		if n == 0 {
			var existing string
			err := tx.QueryRowContext(ctx,
				`SELECT event_id FROM dedup_entries WHERE content_hash = ?`,
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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (
			id, project_id, session_id, timestamp, event_type, content,
			context, outcome, confidence, duration_ms, content_hash,
			consolidation_status, embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.SessionID, e.Timestamp.UTC(), string(e.EventType),
		e.Content, string(contextJSON), string(e.Outcome), e.Confidence,
		e.DurationMs, nullString(e.ContentHash), e.ConsolidationStatus,
		nullString(string(embeddingJSON)))
	if err != nil {
		return "", false, fmt.Errorf("failed to insert event: %w", err)
	}

	return e.ID, true, nil
}

// ExistingHashes reports which of the given hashes are already recorded.
// The lookup runs as bulk IN queries, chunked to stay within SQLite's bound
// parameter limit, never as per-hash round-trips.
func (s *Store) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})

	for start := 0; start < len(hashes); start += maxQueryParams {
		end := min(start+maxQueryParams, len(hashes))
		chunk := hashes[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := `SELECT content_hash FROM dedup_entries WHERE content_hash IN (` + placeholders + `)`

		args := make([]any, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query hashes: %w", err)
		}

		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan hash: %w", err)
			}
			found[h] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating rows: %w", err)
		}
		rows.Close()
	}

	return found, nil
}

// GetEvent retrieves an event by its id.
func (s *Store) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	e, err := s.scanEvent(s.db.QueryRowContext(ctx, selectEvent+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}

	return e, err
}

// GetEventByHash retrieves an event by its content hash.
func (s *Store) GetEventByHash(ctx context.Context, hash string) (*event.Event, error) {
	e, err := s.scanEvent(s.db.QueryRowContext(ctx, selectEvent+` WHERE content_hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Hash: hash}
	}

	return e, err
}

const selectEvent = `
	SELECT id, project_id, session_id, timestamp, event_type, content,
	       context, outcome, confidence, duration_ms, content_hash,
	       consolidation_status, embedding
	FROM events`

func (s *Store) scanEvent(row *sql.Row) (*event.Event, error) {
	var (
		e             event.Event
		eventType     string
		outcome       sql.NullString
		contextJSON   sql.NullString
		contentHash   sql.NullString
		embeddingJSON sql.NullString
	)

	err := row.Scan(&e.ID, &e.ProjectID, &e.SessionID, &e.Timestamp, &eventType,
		&e.Content, &contextJSON, &outcome, &e.Confidence, &e.DurationMs,
		&contentHash, &e.ConsolidationStatus, &embeddingJSON)
	if err != nil {
		return nil, err
	}

	e.EventType = event.Type(eventType)
	if outcome.Valid {
		e.Outcome = event.Outcome(outcome.String)
	}
	if contentHash.Valid {
		e.ContentHash = contentHash.String
	}
	if contextJSON.Valid && contextJSON.String != "" && contextJSON.String != "null" {
		if err := json.Unmarshal([]byte(contextJSON.String), &e.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &e.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
	}

	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ensure Store implements storage.EventStore
var _ storage.EventStore = (*Store)(nil)
