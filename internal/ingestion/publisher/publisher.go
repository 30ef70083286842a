// Package publisher accepts validated documents and hands them to the index,
// either by publishing an ingest event to Kafka or, when no producer is
// configured, by indexing the document in process.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/kafka"
	"github.com/google/uuid"
)

// EventWriter publishes events to the ingest topic.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Indexer indexes a document synchronously and reports its shard.
type Indexer interface {
	Index(ctx context.Context, event ingestion.IngestEvent) (int, error)
}

// Publisher routes ingest requests to Kafka or straight to the indexer.
type Publisher struct {
	producer EventWriter
	indexer  Indexer
	now      func() time.Time
	logger   *slog.Logger
}

// New returns a Publisher. With a non-nil producer, documents go through
// Kafka; otherwise indexer is used directly.
func New(producer EventWriter, indexer Indexer) *Publisher {
	return &Publisher{
		producer: producer,
		indexer:  indexer,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest assigns a document ID when the request has none and forwards the
// document. ShardID is -1 when the shard is decided by the consumer.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	docID := req.ID
	if docID == "" {
		docID = uuid.NewString()
	}
	event := ingestion.IngestEvent{
		DocumentID: docID,
		Title:      req.Title,
		Body:       req.Body,
		IngestedAt: p.now().UTC(),
	}

	if p.producer != nil {
		if err := p.producer.Publish(ctx, kafka.Event{Key: docID, Type: ingestion.EventTypeIngest, Value: event}); err != nil {
			return nil, fmt.Errorf("publishing ingest event for %s: %w", docID, err)
		}
		p.logger.Debug("ingest event published", "doc_id", docID)
		return &ingestion.IngestResponse{
			DocumentID: docID,
			Status:     ingestion.StatusPending,
			ShardID:    -1,
		}, nil
	}

	if p.indexer == nil {
		return nil, errors.New("no producer or indexer configured")
	}
	shardID, err := p.indexer.Index(ctx, event)
	if err != nil {
		return nil, err
	}
	return &ingestion.IngestResponse{
		DocumentID: docID,
		Status:     ingestion.StatusIndexed,
		ShardID:    shardID,
	}, nil
}
