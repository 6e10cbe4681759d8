package ingest

import (
	"errors"
	"fmt"
)

var errNoDedupStore = errors.New("ingest: dedup store is required")

// PersistenceError is returned when the persistence stage fails; the whole
// batch was rolled back and nothing of it is observable.
type PersistenceError struct {
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("batch persistence failed, rolled back: %v", e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// EnrichmentError wraps an embedding-provider failure. It is logged and
// counted, never returned from Process: affected events persist without an
// embedding.
type EnrichmentError struct {
	Err error
}

func (e EnrichmentError) Error() string {
	return fmt.Sprintf("batch enrichment failed: %v", e.Err)
}

func (e EnrichmentError) Unwrap() error { return e.Err }
