// Package consumer reads ingestion events from Kafka and indexes them into
// the shard that owns each document.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/metrics"
)

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// Indexer writes ingest events into the shard router.
type Indexer struct {
	router  *shard.Router
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewIndexer returns an Indexer. m may be nil.
func NewIndexer(router *shard.Router, m *metrics.Metrics) *Indexer {
	return &Indexer{
		router:  router,
		metrics: m,
		logger:  slog.Default().With("component", "index-consumer"),
	}
}

// Index stores the event's document in the shard its ID hashes to.
func (ix *Indexer) Index(ctx context.Context, event ingestion.IngestEvent) (int, error) {
	shardID, engine := ix.router.Assign(event.DocumentID)
	if err := engine.IndexDocument(event.DocumentID, event.Title, event.Body); err != nil {
		return shardID, fmt.Errorf("indexing document %s in shard %d: %w", event.DocumentID, shardID, err)
	}
	if ix.metrics != nil {
		ix.metrics.DocsIndexedTotal.Inc()
		ix.metrics.ShardDocCount.WithLabelValues(fmt.Sprint(shardID)).Set(float64(engine.GetTotalDocs()))
	}
	ix.logger.Info("document indexed",
		"doc_id", event.DocumentID,
		"shard_id", shardID,
	)
	return shardID, nil
}

// HandleMessage returns a Kafka MessageHandler that indexes every ingest
// event. Undecodable, foreign and ID-less messages are skipped so they do
// not block the partition.
func (ix *Indexer) HandleMessage() kafka.MessageHandler {
	return kafka.JSONHandler(ingestion.EventTypeIngest, ix.logger, func(ctx context.Context, msg kafka.Message, event ingestion.IngestEvent) error {
		if event.DocumentID == "" {
			ix.logger.Warn("ingest event without document id, skipping", "key", string(msg.Key), "offset", msg.Offset)
			return nil
		}
		ix.logger.Debug("processing ingest event", "doc_id", event.DocumentID, "partition", msg.Partition)
		_, err := ix.Index(ctx, event)
		return err
	})
}
