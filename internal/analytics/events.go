// Package analytics records what the service does: every expansion and
// search becomes an event that is aggregated in process and shipped to
// Kafka in batches.
package analytics

import "time"

type EventType string

const (
	EventExpansion       EventType = "expansion"
	EventEmptyExpansion  EventType = "empty_expansion"
	EventFailedExpansion EventType = "failed_expansion"
	EventSearch          EventType = "search"
	EventZeroResult      EventType = "zero_result"
)

// ExpansionEvent describes one expansion request.
type ExpansionEvent struct {
	Type            EventType `json:"type"`
	RunID           string    `json:"run_id"`
	Query           string    `json:"query"`
	NormalizedQuery string    `json:"normalized_query"`
	Scorer          string    `json:"scorer"`
	FeedbackDocs    int       `json:"feedback_docs"`
	Vocabulary      int       `json:"vocabulary"`
	TopGrams        []string  `json:"top_grams"`
	LatencyMs       int64     `json:"latency_ms"`
	CacheHit        bool      `json:"cache_hit"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id,omitempty"`
}

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
