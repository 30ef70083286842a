// Package kafka carries documents and analytics events over Kafka using
// segmentio/kafka-go. Producers publish typed JSON events; consumers hand
// each record to a MessageHandler, usually built with JSONHandler.
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

// Fetch errors are retried with a doubling pause between these bounds.
const (
	minFetchBackoff = 100 * time.Millisecond
	maxFetchBackoff = 5 * time.Second
)

// Message is the consumer's view of one record.
type Message struct {
	Key       []byte
	Value     []byte
	Type      string
	Partition int
	Offset    int64
}

// MessageHandler processes one record. A returned error leaves the offset
// uncommitted.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
}

// NewConsumer creates a Consumer for the given topic and handler.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
}

// Start fetches and processes messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	var backoff time.Duration
	for {
		raw, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			backoff = nextFetchBackoff(backoff)
			c.logger.Error("failed to fetch message", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		msg := fromKafka(raw)
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"type", msg.Type,
			"value_size", len(msg.Value),
		)
		if err := c.handler(ctx, msg); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"type", msg.Type,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, raw); err != nil {
			c.logger.Error("failed to commit message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func fromKafka(m kafka.Message) Message {
	msg := Message{Key: m.Key, Value: m.Value, Partition: m.Partition, Offset: m.Offset}
	for _, h := range m.Headers {
		if h.Key == HeaderEventType {
			msg.Type = string(h.Value)
		}
	}
	return msg
}

func nextFetchBackoff(prev time.Duration) time.Duration {
	if prev < minFetchBackoff {
		return minFetchBackoff
	}
	return min(2*prev, maxFetchBackoff)
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}

// JSONHandler decodes each message into T before calling fn. Messages of
// another event type and messages that fail to decode are logged and
// skipped so one bad record cannot stall its partition. An empty
// eventType accepts untyped records too.
func JSONHandler[T any](eventType string, logger *slog.Logger, fn func(ctx context.Context, msg Message, value T) error) MessageHandler {
	return func(ctx context.Context, msg Message) error {
		if eventType != "" && msg.Type != "" && msg.Type != eventType {
			logger.Warn("skipping message of unexpected type", "type", msg.Type, "want", eventType, "offset", msg.Offset)
			return nil
		}
		value, err := DecodeJSON[T](msg.Value)
		if err != nil {
			logger.Error("skipping undecodable message", "key", string(msg.Key), "offset", msg.Offset, "error", err)
			return nil
		}
		return fn(ctx, msg, value)
	}
}
