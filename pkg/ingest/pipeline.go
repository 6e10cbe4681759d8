// Package ingest implements the bulk ingestion path: a six-stage pipeline
// that dedups a batch against itself and the store, optionally enriches the
// survivors with embeddings, and persists them in one transaction.
//
// Stages: in-batch dedup -> hash -> bulk existence check -> enrichment ->
// transactional persistence -> cache cleanup. Per-event outcomes aggregate
// into the BatchReport; only persistence-stage failure fails the call.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/papercomputeco/engram/pkg/dedup"
	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/eventstream"
)

const (
	// DefaultBatchSizeHint is the persistence chunk size when none is
	// configured.
	DefaultBatchSizeHint = 500

	// DefaultEmbedTimeout bounds one enrichment call.
	DefaultEmbedTimeout = 30 * time.Second
)

// Config wires a Pipeline's collaborators.
type Config struct {
	// Dedup is the two-level dedup store the batch checks and persists
	// through. Required.
	Dedup *dedup.Store

	// Hasher computes canonical content hashes. Defaults to a fresh Hasher.
	Hasher *event.Hasher

	// Embedder enriches insert events with vectors. Optional; absence
	// skips the enrichment stage entirely.
	Embedder embeddings.Embedder

	// EmbedTimeout bounds one enrichment call. Defaults to
	// DefaultEmbedTimeout.
	EmbedTimeout time.Duration

	// BatchSizeHint chunks the enrichment calls. Defaults to
	// DefaultBatchSizeHint.
	BatchSizeHint int

	// Publisher receives one batch-committed notification per run.
	// Optional; publish failures are logged, never fail the batch.
	Publisher eventstream.Publisher

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline is the six-stage bulk ingestion pipeline. One Pipeline may serve
// concurrent Process calls; correctness of concurrent persistence is the
// backing store's transaction isolation.
type Pipeline struct {
	dedup        *dedup.Store
	hasher       *event.Hasher
	embedder     embeddings.Embedder
	embedTimeout time.Duration
	batchSize    int
	publisher    eventstream.Publisher
	logger       *slog.Logger
}

// NewPipeline creates a Pipeline. Config.Dedup is required.
func NewPipeline(c Config) (*Pipeline, error) {
	if c.Dedup == nil {
		return nil, errNoDedupStore
	}

	if c.Hasher == nil {
		c.Hasher = event.NewHasher()
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = DefaultEmbedTimeout
	}
	if c.BatchSizeHint <= 0 {
		c.BatchSizeHint = DefaultBatchSizeHint
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Pipeline{
		dedup:        c.Dedup,
		hasher:       c.Hasher,
		embedder:     c.Embedder,
		embedTimeout: c.EmbedTimeout,
		batchSize:    c.BatchSizeHint,
		publisher:    c.Publisher,
		logger:       c.Logger,
	}, nil
}

// Process runs one batch through all six stages and returns its report.
// The only fatal outcome is persistence failure; everything else aggregates
// into the report's counters.
func (p *Pipeline) Process(ctx context.Context, events []*event.Event) (*BatchReport, error) {
	started := time.Now()

	report := &BatchReport{Total: len(events)}

	// Stage 1+2: hash every event and collapse in-batch duplicates.
	// The canonical hash is what makes two events "the same", so the
	// in-batch dedup rides on the hashing pass: first occurrence wins.
	var (
		survivors []*event.Event
		hashes    []string
	)
	seen := make(map[string]struct{})

	for _, e := range events {
		if e == nil {
			report.Errors++
			continue
		}

		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}

		hash, err := p.hasher.Hash(e)
		if err != nil {
			// Non-fatal: accepted un-deduplicated.
			report.HashFailures++
			p.logger.Warn("content hashing failed, event accepted un-deduplicated",
				"event_type", e.EventType,
				"error", err,
			)
			survivors = append(survivors, e)
			continue
		}

		if _, dup := seen[hash]; dup {
			report.SkippedDuplicate++
			continue
		}
		seen[hash] = struct{}{}

		e.ContentHash = hash
		survivors = append(survivors, e)
		hashes = append(hashes, hash)
	}

	// Stage 3: one bulk existence check against cache + store.
	existing, err := p.dedup.ExistsMany(ctx, hashes)
	if err != nil {
		return nil, PersistenceError{Err: err}
	}

	inserts := survivors[:0:0]
	for _, e := range survivors {
		if e.ContentHash != "" {
			if _, ok := existing[e.ContentHash]; ok {
				report.SkippedExisting++
				continue
			}
		}
		inserts = append(inserts, e)
	}

	// Stage 4: enrichment, insert events only. Failures never abort the batch.
	p.enrich(ctx, inserts, report)

	// Stage 5: one transactional bulk insert, all-or-nothing.
	inserted, err := p.dedup.InsertMany(ctx, inserts)
	if err != nil {
		return nil, PersistenceError{Err: err}
	}
	report.Inserted = inserted

	// InsertMany already backfilled the cache (stage 6); finalize the report.
	report.ProcessingTimeMs = time.Since(started).Milliseconds()

	p.logger.Info("batch processed",
		"total", report.Total,
		"inserted", report.Inserted,
		"skipped_duplicate", report.SkippedDuplicate,
		"skipped_existing", report.SkippedExisting,
		"errors", report.Errors,
		"duration_ms", report.ProcessingTimeMs,
	)

	p.publishCommitted(ctx, report)

	return report, nil
}

// enrich batch-calls the embedder for the insert set, chunked by the batch
// size hint and bounded by the embed timeout. Any failure is counted and
// logged; the affected events proceed without an embedding.
func (p *Pipeline) enrich(ctx context.Context, inserts []*event.Event, report *BatchReport) {
	if p.embedder == nil || len(inserts) == 0 {
		return
	}

	for start := 0; start < len(inserts); start += p.batchSize {
		end := min(start+p.batchSize, len(inserts))
		chunk := inserts[start:end]

		texts := make([]string, len(chunk))
		for i, e := range chunk {
			texts[i] = e.Content
		}

		embedCtx, cancel := context.WithTimeout(ctx, p.embedTimeout)
		vectors, err := p.embedder.EmbedBatch(embedCtx, texts)
		cancel()

		if err != nil {
			report.EnrichmentFailures++
			p.logger.Warn("batch enrichment failed, events persist without embeddings",
				"chunk_size", len(chunk),
				"error", EnrichmentError{Err: err},
			)
			continue
		}

		for i, e := range chunk {
			if i < len(vectors) && len(vectors[i]) > 0 {
				e.Embedding = vectors[i]
			}
		}
	}
}

func (p *Pipeline) publishCommitted(ctx context.Context, report *BatchReport) {
	if p.publisher == nil || report.Inserted == 0 {
		return
	}

	err := p.publisher.PublishRecorded(ctx, &eventstream.RecordedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeBatchCommitted,
		EmittedAt:     time.Now().UTC(),
		BatchSize:     report.Inserted,
	})
	if err != nil {
		p.logger.Warn("failed to publish batch notification", "error", err)
	}
}
