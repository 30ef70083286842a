// Package ingestion defines the request/response types and Kafka event schemas
// used by the document ingestion pipeline.
package ingestion

import "time"

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint. An
// empty ID is replaced by a generated one; a known ID replaces the stored
// document.
type IngestRequest struct {
	ID    string `json:"id" validate:"omitempty,max=255,printascii"`
	Title string `json:"title" validate:"max=1024"`
	Body  string `json:"body" validate:"required,max=1048576"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ShardID    int    `json:"shard_id"`
}

// Document statuses reported in IngestResponse.
const (
	StatusPending = "PENDING"
	StatusIndexed = "INDEXED"
)

// EventTypeIngest is the event-type header of ingest events.
const EventTypeIngest = "document.ingest"

// IngestEvent is the Kafka message payload consumed by the indexer.
type IngestEvent struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	IngestedAt time.Time `json:"ingested_at"`
}
