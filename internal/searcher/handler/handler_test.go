package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/history"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/expand"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/source"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpander struct {
	lastReq     expand.Request
	err         error
	invalidated bool
	runs        map[string]*history.Run
}

func (f *fakeExpander) Expand(ctx context.Context, req expand.Request) (*expand.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &expand.Response{
		RunID:           "run-1",
		Query:           req.Query,
		NormalizedQuery: strings.ToLower(req.Query),
		Scorer:          "randomwalk",
		Grams:           []expand.GramScore{{Terms: []string{"graph"}, Text: "graph", Weight: 0.5}},
		Results:         []expand.ResultScore{},
	}, nil
}

func (f *fakeExpander) Run(ctx context.Context, id string) (*history.Run, error) {
	if run, ok := f.runs[id]; ok {
		return run, nil
	}
	return nil, apperrors.ErrRunNotFound
}

func (f *fakeExpander) InvalidateCache(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.invalidated = true
	return nil
}

type fakeExecutor struct {
	calls int
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	results := []ranker.ScoredDoc{}
	if plan.Terms[0] != "zebra" {
		results = append(results, ranker.ScoredDoc{DocID: "d1", Score: 1.5})
	}
	return &executor.SearchResult{Query: plan.RawQuery, TotalHits: len(results), Results: results}, nil
}

type fakeTracker struct{ events []analytics.SearchEvent }

func (f *fakeTracker) TrackSearch(event analytics.SearchEvent) { f.events = append(f.events, event) }

type fakeRecent struct{ runs []history.Run }

func (f *fakeRecent) Recent(ctx context.Context, limit int) ([]history.Run, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func newTestMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	New(d).Register(mux)
	return mux
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestExpandPost(t *testing.T) {
	exp := &fakeExpander{}
	mux := newTestMux(Deps{Expander: exp, Executor: &fakeExecutor{}})

	rec := serve(mux, http.MethodPost, "/api/v1/expand", `{"query":"Graph Walk","docs":5,"scorer":"languagemodel"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Graph Walk", exp.lastReq.Query)
	assert.Equal(t, 5, exp.lastReq.FeedbackDocs)
	assert.Equal(t, "languagemodel", exp.lastReq.Scorer)

	body := decode(t, rec)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Len(t, body["grams"], 1)

	rec = serve(mux, http.MethodPost, "/api/v1/expand", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpandOverIndexedCorpus(t *testing.T) {
	router, err := shard.NewRouter(config.IndexerConfig{
		DataDir:         t.TempDir(),
		SegmentMaxSize:  1 << 30,
		InMemoryVectors: true,
	}, 2)
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })
	for id, body := range map[string]string{
		"d1": "cat dog play in the park",
		"d2": "cat fish swim near dog",
	} {
		_, engine := router.Assign(id)
		require.NoError(t, engine.IndexDocument(id, "", body))
	}
	src := source.New(router, source.Config{})
	mux := newTestMux(Deps{
		Expander: expand.New(src.Sources(), config.Default().Expansion),
		Executor: executor.New(executor.FromEngines(router.Engines())),
	})

	rec := serve(mux, http.MethodGet, "/api/v1/expand?q=cat+dog", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp expand.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cat dog", resp.NormalizedQuery)
	require.NotEmpty(t, resp.Grams)
	assert.Positive(t, resp.Saturated)
	assert.Equal(t, math.MaxFloat64, resp.Grams[0].Weight)
	for _, g := range resp.Grams {
		assert.False(t, math.IsInf(g.Weight, 0), g.Text)
	}
	require.Len(t, resp.Results, 2)
	assert.InDelta(t, 1.0, resp.Results[0].Posterior+resp.Results[1].Posterior, 1e-9)
}

func TestWriteJSONUnencodableValue(t *testing.T) {
	h := New(Deps{})
	rec := httptest.NewRecorder()
	h.writeJSON(rec, http.StatusOK, map[string]float64{"weight": math.Inf(1)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestExpandGet(t *testing.T) {
	exp := &fakeExpander{}
	mux := newTestMux(Deps{Expander: exp, Executor: &fakeExecutor{}})

	rec := serve(mux, http.MethodGet, "/api/v1/expand?q=graph&grams=3&top=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, expand.Request{Query: "graph", MaxGrams: 3, Top: 7}, exp.lastReq)

	rec = serve(mux, http.MethodGet, "/api/v1/expand?q=graph&docs=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "docs must be an integer", decode(t, rec)["error"])
}

func TestExpandErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "invalid input",
			err:     apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query has no indexable terms"),
			status:  http.StatusBadRequest,
			message: "query has no indexable terms",
		},
		{
			name:    "vocabulary too large",
			err:     fmt.Errorf("query %q: %w", "x", apperrors.ErrVocabularyTooLarge),
			status:  http.StatusUnprocessableEntity,
			message: `query "x": vocabulary too large`,
		},
		{
			name:    "retrieval failure",
			err:     &expansion.QueryError{Query: "x", Err: fmt.Errorf("%w: %w", apperrors.ErrRetrieval, errors.New("connection refused"))},
			status:  http.StatusBadGateway,
			message: "retrieval failed",
		},
		{
			name:    "timeout",
			err:     context.DeadlineExceeded,
			status:  http.StatusGatewayTimeout,
			message: "operation timed out",
		},
		{
			name:    "unexpected",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			message: "internal error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(Deps{Expander: &fakeExpander{err: tt.err}, Executor: &fakeExecutor{}})
			rec := serve(mux, http.MethodGet, "/api/v1/expand?q=x", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["error"])
		})
	}
}

func TestSearch(t *testing.T) {
	exec := &fakeExecutor{}
	tracker := &fakeTracker{}
	mux := newTestMux(Deps{Expander: &fakeExpander{}, Executor: exec, Tracker: tracker, DefaultLimit: 5, MaxResults: 20})

	rec := serve(mux, http.MethodGet, "/api/v1/search?q=graph&limit=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total_hits"])

	rec = serve(mux, http.MethodGet, "/api/v1/search?q=zebra", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, tracker.events, 2)
	assert.Equal(t, analytics.EventSearch, tracker.events[0].Type)
	assert.Equal(t, analytics.EventZeroResult, tracker.events[1].Type)

	assert.Equal(t, http.StatusBadRequest, serve(mux, http.MethodGet, "/api/v1/search", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(mux, http.MethodGet, "/api/v1/search?q=graph&limit=0", "").Code)

	rec = serve(mux, http.MethodGet, "/api/v1/search?q=the", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, exec.calls)
}

func TestSearchShardFailure(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("shard 1: %w", apperrors.ErrShardUnavailable)}
	mux := newTestMux(Deps{Expander: &fakeExpander{}, Executor: exec})
	rec := serve(mux, http.MethodGet, "/api/v1/search?q=graph", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "shard unavailable", decode(t, rec)["error"])
}

func TestRuns(t *testing.T) {
	exp := &fakeExpander{runs: map[string]*history.Run{"abc": {ID: "abc", Query: "graph"}}}
	recent := &fakeRecent{runs: []history.Run{{ID: "abc"}, {ID: "def"}}}
	mux := newTestMux(Deps{Expander: exp, Executor: &fakeExecutor{}, Runs: recent})

	rec := serve(mux, http.MethodGet, "/api/v1/runs/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "graph", decode(t, rec)["query"])

	rec = serve(mux, http.MethodGet, "/api/v1/runs/zzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(mux, http.MethodGet, "/api/v1/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["runs"], 1)

	rec = serve(mux, http.MethodGet, "/api/v1/runs?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mux = newTestMux(Deps{Expander: exp, Executor: &fakeExecutor{}})
	assert.Equal(t, http.StatusServiceUnavailable, serve(mux, http.MethodGet, "/api/v1/runs", "").Code)
}

func TestCacheInvalidate(t *testing.T) {
	exp := &fakeExpander{}
	mux := newTestMux(Deps{Expander: exp, Executor: &fakeExecutor{}})
	rec := serve(mux, http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, exp.invalidated)

	mux = newTestMux(Deps{Expander: &fakeExpander{err: apperrors.ErrCacheDisabled}, Executor: &fakeExecutor{}})
	rec = serve(mux, http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(mux, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", decode(t, rec)["status"])
}

func TestHealth(t *testing.T) {
	mux := newTestMux(Deps{Expander: &fakeExpander{}, Executor: &fakeExecutor{}})
	rec := serve(mux, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
