package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the notification payload schema.
	SchemaVersionV1 = 1

	// EventTypeRecorded is emitted after an episodic event is persisted.
	EventTypeRecorded = "engram.event.recorded"

	// EventTypeBatchCommitted is emitted after a batch pipeline run commits.
	EventTypeBatchCommitted = "engram.batch.committed"
)

// RecordedEvent is a transport-neutral notification that one episodic event
// was durably recorded. Downstream consolidation consumes these instead of
// polling the store.
type RecordedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EmittedAt     time.Time `json:"emitted_at"`
	Source        Source    `json:"source"`

	// EventID is the persisted episodic event's id.
	EventID string `json:"event_id"`

	// ContentHash is the event's canonical content hash, when one exists.
	ContentHash string `json:"content_hash,omitempty"`

	// BatchSize is set on batch-committed notifications: the number of
	// events the batch inserted.
	BatchSize int `json:"batch_size,omitempty"`
}

// Source identifies where the recorded event originated.
type Source struct {
	ProjectID string `json:"project_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	HookID    string `json:"hook_id,omitempty"`
}
