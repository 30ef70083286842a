package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Header names set on every published message.
const (
	HeaderContentType = "content-type"
	HeaderEventType   = "event-type"
)

// Event is one published record: Key picks the partition, Type names the
// payload schema for consumers and Value is encoded as JSON.
type Event struct {
	Key   string
	Type  string
	Value any
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic. Ingest events are
// keyed by document ID and analytics events by normalized query, so the
// hash balancer keeps each key's events ordered.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes a single event synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message", "key", event.Key, "type", event.Type, "error", err)
		return fmt.Errorf("publishing %s event to kafka: %w", event.Type, err)
	}
	p.logger.Debug("message published", "key", event.Key, "type", event.Type, "value_size", len(msg.Value))
	return nil
}

// PublishBatch writes events in a single write call. Nothing is written if
// any event fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		msg, err := encodeEvent(event)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish batch", "count", len(messages), "error", err)
		return fmt.Errorf("publishing batch to kafka: %w", err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func encodeEvent(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling %s event %q: %w", event.Type, event.Key, err)
	}
	headers := []kafka.Header{{Key: HeaderContentType, Value: []byte("application/json")}}
	if event.Type != "" {
		headers = append(headers, kafka.Header{Key: HeaderEventType, Value: []byte(event.Type)})
	}
	return kafka.Message{Key: []byte(event.Key), Value: value, Headers: headers}, nil
}
