// Package handler exposes expansion, search and run history over HTTP.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/history"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/expand"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/middleware"
)

const maxBodyBytes = 64 << 10

type Expander interface {
	Expand(ctx context.Context, req expand.Request) (*expand.Response, error)
	Run(ctx context.Context, id string) (*history.Run, error)
	InvalidateCache(ctx context.Context) error
}

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

type SearchCache interface {
	GetOrCompute(ctx context.Context, key string, computeFn func() (*executor.SearchResult, error)) (*executor.SearchResult, bool, error)
	Invalidate(ctx context.Context) error
	Stats() (hits, misses int64)
}

type SearchTracker interface {
	TrackSearch(event analytics.SearchEvent)
}

// RecentRuns lists the latest recorded runs.
type RecentRuns interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

// Deps wires the handler. Only Expander and Executor are required.
type Deps struct {
	Expander     Expander
	Executor     SearchExecutor
	SearchCache  SearchCache
	Tracker      SearchTracker
	Runs         RecentRuns
	Metrics      *metrics.Metrics
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	expander     Expander
	executor     SearchExecutor
	cache        SearchCache
	tracker      SearchTracker
	runs         RecentRuns
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(d Deps) *Handler {
	if d.DefaultLimit <= 0 {
		d.DefaultLimit = 10
	}
	if d.MaxResults < d.DefaultLimit {
		d.MaxResults = d.DefaultLimit
	}
	return &Handler{
		expander:     d.Expander,
		executor:     d.Executor,
		cache:        d.SearchCache,
		tracker:      d.Tracker,
		runs:         d.Runs,
		metrics:      d.Metrics,
		defaultLimit: d.DefaultLimit,
		maxResults:   d.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/expand", h.Expand)
	mux.HandleFunc("POST /api/v1/expand", h.Expand)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/runs", h.RecentRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.Run)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

// Expand accepts either a JSON body (POST) or query parameters (GET):
// q, docs, grams, scorer and top.
func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	var req expand.Request
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		var err error
		if req, err = expandRequestFromQuery(r); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	resp, err := h.expander.Expand(r.Context(), req)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func expandRequestFromQuery(r *http.Request) (expand.Request, error) {
	q := r.URL.Query()
	req := expand.Request{
		Query:  q.Get("q"),
		Scorer: q.Get("scorer"),
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"docs", &req.FeedbackDocs},
		{"grams", &req.MaxGrams},
		{"top", &req.Top},
	}
	for _, p := range ints {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("%s must be an integer", p.name)
		}
		*p.dst = n
	}
	return req, nil
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	plan := parser.Parse(query)
	if len(plan.Terms) == 0 {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:   query,
			Results: []ranker.ScoredDoc{},
		})
		return
	}

	var result *executor.SearchResult
	var err error
	cacheHit := false

	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, cache.SearchKey(query, limit), func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
	} else {
		result, err = h.executor.Execute(ctx, plan, limit)
	}

	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		if h.metrics != nil {
			h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		}
		h.writeAppError(w, err)
		return
	}

	elapsed := time.Since(start)
	latencyMs := elapsed.Milliseconds()

	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	eventType := analytics.EventSearch
	if result.TotalHits == 0 {
		eventType = analytics.EventZeroResult
	}
	if h.metrics != nil {
		resultType := "hit"
		if eventType == analytics.EventZeroResult {
			resultType = "zero_result"
		}
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
		h.metrics.SearchLatency.Observe(elapsed.Seconds())
	}
	if h.tracker != nil {
		h.tracker.TrackSearch(analytics.SearchEvent{
			Type:      eventType,
			Query:     query,
			Terms:     plan.Terms,
			TotalHits: result.TotalHits,
			Returned:  len(result.Results),
			LatencyMs: latencyMs,
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	run, err := h.expander.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) RecentRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 100 {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}
	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops cached expansions and cached searches.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	err := h.expander.InvalidateCache(r.Context())
	expansionDisabled := errors.Is(err, apperrors.ErrCacheDisabled)
	if err != nil && !expansionDisabled {
		h.logger.Error("expansion cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	if h.cache == nil {
		if expansionDisabled {
			h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
			return
		}
	} else if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("search cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes data before committing the status, so a value that
// cannot be encoded turns into a 500 instead of an empty 200.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "status", status, "error", err)
		buf.Reset()
		buf.WriteString(`{"error":"internal error"}` + "\n")
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err to its status code. Server-side failures only
// expose the sentinel message.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		switch {
		case errors.Is(err, apperrors.ErrRetrieval):
			message = apperrors.ErrRetrieval.Error()
		case errors.Is(err, apperrors.ErrShardUnavailable):
			message = apperrors.ErrShardUnavailable.Error()
		case errors.Is(err, apperrors.ErrEmptyCollection):
			message = apperrors.ErrEmptyCollection.Error()
		case status == http.StatusGatewayTimeout:
			message = apperrors.ErrTimeout.Error()
		default:
			message = "internal error"
		}
	}
	h.writeError(w, status, message)
}
