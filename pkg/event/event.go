// Package event defines the episodic event record and its canonical content hash.
//
// An episodic event is an immutable record of one observed agent action: a tool
// use, a session boundary, a task outcome, a consolidation run. Events are
// created once by the ingestion path and never updated afterwards, with the
// single exception of ConsolidationStatus which belongs to the downstream
// consolidation process.
package event

import (
	"time"
)

// Type classifies what kind of agent action an event records.
type Type string

const (
	TypeToolUse       Type = "tool_use"
	TypeSessionStart  Type = "session_start"
	TypeSessionEnd    Type = "session_end"
	TypeTaskOutcome   Type = "task_outcome"
	TypeConsolidation Type = "consolidation"
)

// Outcome describes how the recorded action ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
	OutcomeUnknown Outcome = "unknown"
)

// Consolidation status values. Owned by the consolidation process; the
// ingestion core only ever writes StatusPending.
const (
	StatusPending      = "pending"
	StatusConsolidated = "consolidated"
	StatusSkipped      = "skipped"
)

// Event is a single episodic event.
//
// ContentHash is the hex SHA-256 of the event's canonical content (see Hasher)
// and is the permanent deduplication key. An empty ContentHash means hashing
// failed; such events are stored un-deduplicated rather than dropped.
type Event struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType Type           `json:"event_type"`
	Content   string         `json:"content"`
	Context   map[string]any `json:"context,omitempty"`

	Outcome    Outcome `json:"outcome,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`

	ContentHash         string `json:"content_hash,omitempty"`
	ConsolidationStatus string `json:"consolidation_status,omitempty"`

	// Embedding is set by batch enrichment only. It is not part of the
	// canonical content and never participates in hashing.
	Embedding []float32 `json:"embedding,omitempty"`
}
