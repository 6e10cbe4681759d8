package ingest

import "fmt"

// BatchReport contains statistics from one batch pipeline run.
type BatchReport struct {
	// Total is the number of events submitted.
	Total int `json:"total"`

	// Inserted is the number of events newly persisted.
	Inserted int `json:"inserted"`

	// SkippedDuplicate counts events collapsed inside the batch itself.
	SkippedDuplicate int `json:"skipped_duplicate"`

	// SkippedExisting counts events whose content was already recorded.
	SkippedExisting int `json:"skipped_existing"`

	// Errors counts events rejected before persistence (nil entries).
	Errors int `json:"errors"`

	// HashFailures counts events accepted un-deduplicated because their
	// content could not be hashed.
	HashFailures int `json:"hash_failures"`

	// EnrichmentFailures counts embedding batches that failed or timed out.
	// Affected events persist without an embedding.
	EnrichmentFailures int `json:"enrichment_failures"`

	// ProcessingTimeMs is the wall time of the whole run.
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// Summary returns a human-readable summary of the batch report.
func (r *BatchReport) Summary() string {
	return fmt.Sprintf(
		"Batch complete: %d inserted, %d duplicate in batch, %d already recorded, %d errors\n"+
			"Processed %d events in %dms (%d hash failures, %d enrichment failures)",
		r.Inserted, r.SkippedDuplicate, r.SkippedExisting, r.Errors,
		r.Total, r.ProcessingTimeMs,
		r.HashFailures, r.EnrichmentFailures,
	)
}
