package eventstream

import "context"

// Publisher publishes recorded-event notifications to an event stream backend.
type Publisher interface {
	PublishRecorded(ctx context.Context, event *RecordedEvent) error
	Close() error
}
