package analytics

import "log/slog"

// Sink receives typed events keyed for partitioning.
type Sink interface {
	Track(eventType, key string, value any)
}

// Collector feeds every event to the aggregator and, when a sink is set,
// forwards it for publishing.
type Collector struct {
	aggregator *Aggregator
	sink       Sink
	logger     *slog.Logger
}

// NewCollector returns a Collector. sink may be nil.
func NewCollector(aggregator *Aggregator, sink Sink) *Collector {
	return &Collector{
		aggregator: aggregator,
		sink:       sink,
		logger:     slog.Default().With("component", "analytics-collector"),
	}
}

func (c *Collector) TrackExpansion(event ExpansionEvent) {
	c.aggregator.RecordExpansion(event)
	if c.sink != nil {
		c.sink.Track(expansionEventType(event), event.NormalizedQuery, event)
	}
}

func (c *Collector) TrackSearch(event SearchEvent) {
	c.aggregator.RecordSearch(event)
	if c.sink != nil {
		c.sink.Track(string(EventSearch), event.Query, event)
	}
}

func expansionEventType(event ExpansionEvent) string {
	switch {
	case event.Error != "":
		return string(EventFailedExpansion)
	case event.Type == "":
		return string(EventExpansion)
	}
	return string(event.Type)
}
