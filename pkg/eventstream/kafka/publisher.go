// Package kafka implements the eventstream Publisher on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/papercomputeco/engram/pkg/eventstream"
)

// DefaultTopic is the topic recorded-event notifications are published to.
const DefaultTopic = "engram.events.recorded"

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic overrides DefaultTopic when set.
	Topic string
}

// Publisher publishes recorded-event notifications to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
		// The notification is advisory; lead-broker ack keeps publish latency
		// off the ingestion path.
		RequiredAcks: kafka.RequireOne,
	}

	return &Publisher{writer: writer}, nil
}

// PublishRecorded publishes one notification, keyed by content hash (falling
// back to event id) so replays of the same event land on the same partition.
func (p *Publisher) PublishRecorded(ctx context.Context, event *eventstream.RecordedEvent) error {
	if event == nil {
		return eventstream.ErrNilRecordedEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal recorded event: %w", err)
	}

	key := event.ContentHash
	if key == "" {
		key = event.EventID
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish recorded event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Ensure Publisher implements eventstream.Publisher
var _ eventstream.Publisher = (*Publisher)(nil)
