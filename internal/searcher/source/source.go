// Package source serves the expansion model from the sharded index: BM25
// retrieval, document vectors and collection statistics. Retrieval goes
// through a circuit breaker, a per-call timeout and a short retry.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/resilience"
)

// Shards is the view of the shard router the source needs.
type Shards interface {
	Engines() []*indexer.Engine
	Locate(docID string) (*indexer.Engine, bool)
}

// Config tunes retrieval. Zero values leave the timeout off, make a single
// attempt and use the breaker defaults.
type Config struct {
	Timeout          time.Duration
	Attempts         int
	FailureThreshold int
	ResetTimeout     time.Duration
	OnStateChange    func(name string, from, to resilience.State)
}

// Source implements expansion.Retriever, expansion.VectorProvider and
// expansion.CollectionStats.
type Source struct {
	shards  Shards
	exec    *executor.Executor
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	retry   resilience.RetryConfig
	search  func(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
	logger  *slog.Logger
}

var (
	_ expansion.Retriever       = (*Source)(nil)
	_ expansion.VectorProvider  = (*Source)(nil)
	_ expansion.CollectionStats = (*Source)(nil)
)

func New(shards Shards, cfg Config) *Source {
	s := &Source{
		shards: shards,
		exec:   executor.New(executor.FromEngines(shards.Engines())),
		breaker: resilience.NewCircuitBreaker("retrieval", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
			OnStateChange:    cfg.OnStateChange,
		}),
		timeout: cfg.Timeout,
		retry:   resilience.RetrievalRetry(max(cfg.Attempts, 1)),
		logger:  slog.Default().With("component", "expansion-source"),
	}
	s.search = s.exec.Execute
	return s
}

// NormalizeQuery analyses a raw query into space-separated stems, the form
// the expansion model and RunQuery expect.
func NormalizeQuery(query string) string {
	return strings.Join(tokenizer.Terms(query), " ")
}

// Sources bundles s with the default smoothing strategies.
func (s *Source) Sources() expansion.Sources {
	return expansion.Sources{
		Retriever: s,
		Vectors:   s,
		Stats:     s,
		Smoothing: Smoothing{},
	}
}

// RunQuery ranks documents containing any of the query's stems and returns
// them as whole-document extents. BM25 scores are used as log-domain
// scores, so posteriors are proportional to exp(score).
func (s *Source) RunQuery(ctx context.Context, query string, maxResults int) ([]expansion.Result, error) {
	plan := parser.FromTerms(strings.Fields(query), parser.QueryOR)
	var res *executor.SearchResult
	err := resilience.Retry(ctx, "retrieval", s.retry, func() error {
		return s.breaker.Execute(func() error {
			var err error
			res, err = resilience.WithTimeoutValue(ctx, s.timeout, "retrieval", func(ctx context.Context) (*executor.SearchResult, error) {
				return s.search(ctx, plan, maxResults)
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	out := make([]expansion.Result, len(res.Results))
	for i, d := range res.Results {
		out[i] = expansion.Result{DocumentID: d.DocID, Score: d.Score}
	}
	s.logger.Debug("feedback documents retrieved",
		"query", query,
		"hits", res.TotalHits,
		"returned", len(out),
	)
	return out, nil
}

// DocumentVectors looks each document up on the shard that holds it.
func (s *Source) DocumentVectors(ctx context.Context, documentIDs []string) ([]expansion.DocumentVector, error) {
	out := make([]expansion.DocumentVector, len(documentIDs))
	for i, id := range documentIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		engine, ok := s.shards.Locate(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
		}
		v, err := engine.DocumentVector(id)
		if err != nil {
			return nil, err
		}
		out[i] = expansion.DocumentVector{Positions: v.Positions, Stems: v.Stems}
	}
	return out, nil
}

// TermCount returns the number of indexed tokens in the collection.
func (s *Source) TermCount(ctx context.Context) (float64, error) {
	var n int64
	for _, e := range s.shards.Engines() {
		n += e.TotalTokens()
	}
	return float64(n), ctx.Err()
}

// StemCount returns the collection frequency of stem.
func (s *Source) StemCount(ctx context.Context, stem string) (float64, error) {
	return s.sum(ctx, func(e *indexer.Engine) (int64, error) {
		return e.StemCount(stem)
	})
}

// ExpressionCount returns how often phrase occurs as consecutive words.
func (s *Source) ExpressionCount(ctx context.Context, phrase []string) (float64, error) {
	return s.sum(ctx, func(e *indexer.Engine) (int64, error) {
		return e.PhraseCount(phrase)
	})
}

func (s *Source) sum(ctx context.Context, count func(*indexer.Engine) (int64, error)) (float64, error) {
	var total int64
	for _, e := range s.shards.Engines() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := count(e)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return float64(total), nil
}
