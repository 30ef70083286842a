package analytics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

const (
	DefaultTopQueries = 10
	MaxTopQueries     = 100
)

type AggregatedStats struct {
	TotalExpansions     int64            `json:"total_expansions"`
	TotalSearches       int64            `json:"total_searches"`
	CacheHits           int64            `json:"cache_hits"`
	CacheMisses         int64            `json:"cache_misses"`
	EmptyExpansions     int64            `json:"empty_expansions"`
	FailedExpansions    int64            `json:"failed_expansions"`
	ZeroResultSearches  int64            `json:"zero_result_searches"`
	AvgLatencyMs        float64          `json:"avg_latency_ms"`
	P50LatencyMs        int64            `json:"p50_latency_ms"`
	P95LatencyMs        int64            `json:"p95_latency_ms"`
	P99LatencyMs        int64            `json:"p99_latency_ms"`
	Scorers             map[string]int64 `json:"scorers"`
	TopQueries          []QueryCount     `json:"top_queries"`
	EmptyQueries        []QueryCount     `json:"empty_queries"`
	ExpansionsPerMinute float64          `json:"expansions_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// QueryStats is the per-query view served by the stats handler.
type QueryStats struct {
	Query           string `json:"query"`
	Expansions      int64  `json:"expansions"`
	EmptyExpansions int64  `json:"empty_expansions"`
}

// Aggregator keeps running statistics over expansion and search events.
type Aggregator struct {
	mu               sync.RWMutex
	totalExpansions  atomic.Int64
	totalSearches    atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	emptyExpansions  atomic.Int64
	failedExpansions atomic.Int64
	zeroResults      atomic.Int64
	latencies        []int64
	queryCounts      map[string]int64
	emptyQueries     map[string]int64
	scorers          map[string]int64
	startTime        time.Time
	now              func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:    make([]int64, 0, 1024),
		queryCounts:  make(map[string]int64),
		emptyQueries: make(map[string]int64),
		scorers:      make(map[string]int64),
		startTime:    time.Now(),
		now:          time.Now,
	}
}

func (a *Aggregator) RecordExpansion(event ExpansionEvent) {
	a.totalExpansions.Add(1)
	if event.Error != "" {
		a.failedExpansions.Add(1)
		return
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	empty := event.Type == EventEmptyExpansion
	if empty {
		a.emptyExpansions.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) == maxLatencySamples {
		copy(a.latencies, a.latencies[1:])
		a.latencies = a.latencies[:maxLatencySamples-1]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	a.queryCounts[event.NormalizedQuery]++
	if event.Scorer != "" {
		a.scorers[event.Scorer]++
	}
	if empty {
		a.emptyQueries[event.NormalizedQuery]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.totalSearches.Add(1)
	if event.TotalHits == 0 {
		a.zeroResults.Add(1)
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTopQueries)
}

// StatsTop is Stats with the query lists cut to n entries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalExpansions:    a.totalExpansions.Load(),
		TotalSearches:      a.totalSearches.Load(),
		CacheHits:          a.cacheHits.Load(),
		CacheMisses:        a.cacheMisses.Load(),
		EmptyExpansions:    a.emptyExpansions.Load(),
		FailedExpansions:   a.failedExpansions.Load(),
		ZeroResultSearches: a.zeroResults.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.Scorers = make(map[string]int64, len(a.scorers))
	for name, count := range a.scorers {
		stats.Scorers[name] = count
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.EmptyQueries = topN(a.emptyQueries, n)
	elapsed := a.now().Sub(a.startTime).Minutes()
	if elapsed > 0 {
		stats.ExpansionsPerMinute = float64(stats.TotalExpansions) / elapsed
	}
	return stats
}

// Query reports the counters of one normalized query.
func (a *Aggregator) Query(normalized string) (QueryStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	count, ok := a.queryCounts[normalized]
	if !ok {
		return QueryStats{}, false
	}
	return QueryStats{
		Query:           normalized,
		Expansions:      count,
		EmptyExpansions: a.emptyQueries[normalized],
	}, true
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
