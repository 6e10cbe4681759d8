package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"sync/atomic"
	"time"
)

// hashInput is the canonical field subset that identifies an event's content.
// Excluded on purpose: ID (store-assigned), ConsolidationStatus (mutable),
// Embedding (post-hoc enrichment). The occurrence timestamp is part of
// identity: two identical tool calls at different times are distinct events.
type hashInput struct {
	ProjectID  string         `json:"project_id"`
	SessionID  string         `json:"session_id"`
	EventType  Type           `json:"event_type"`
	Content    string         `json:"content"`
	Context    map[string]any `json:"context"`
	Outcome    Outcome        `json:"outcome"`
	Confidence float64        `json:"confidence"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  string         `json:"timestamp"`
}

// Hasher computes canonical content hashes for events.
//
// The canonical form is RFC 8785 JSON (stable key ordering, normalized
// scalars), so two events with identical semantic content hash identically
// regardless of how their Context maps were built up. Hashing failure is
// non-fatal by contract: callers store the event un-deduplicated and the
// failure is counted for observability.
//
// As of Go 1.25.x the jsontext canonicalizer requires "GOEXPERIMENT=jsonv2".
type Hasher struct {
	failures atomic.Uint64
}

// NewHasher creates a Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// Hash returns the hex-encoded SHA-256 of the event's canonical content.
func (h *Hasher) Hash(e *Event) (string, error) {
	if e == nil {
		h.failures.Add(1)
		return "", fmt.Errorf("cannot hash nil event")
	}

	data, err := json.Marshal(hashInput{
		ProjectID:  e.ProjectID,
		SessionID:  e.SessionID,
		EventType:  e.EventType,
		Content:    e.Content,
		Context:    e.Context,
		Outcome:    e.Outcome,
		Confidence: e.Confidence,
		DurationMs: e.DurationMs,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		h.failures.Add(1)
		return "", fmt.Errorf("failed to marshal hash input: %w", err)
	}

	j := jsontext.Value(data)
	if err := j.Canonicalize(); err != nil {
		h.failures.Add(1)
		return "", fmt.Errorf("failed to canonicalize hash input: %w", err)
	}

	sum := sha256.Sum256(j)
	return hex.EncodeToString(sum[:]), nil
}

// Failures returns the number of hashing failures observed so far.
func (h *Hasher) Failures() uint64 {
	return h.failures.Load()
}
