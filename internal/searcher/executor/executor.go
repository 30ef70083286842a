// Package executor runs parsed queries against every index shard and ranks
// the merged postings with BM25 using collection-wide statistics.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats"`
}

// Shard is the part of an index engine the executor reads.
type Shard interface {
	Postings(stem string) (index.PostingList, error)
	GetTotalDocs() int64
	GetAvgDocLength() float64
	GetDocLength(docID string) int
}

var _ Shard = (*indexer.Engine)(nil)

type shardResult struct {
	postings  map[string]index.PostingList
	totalDocs int64
	avgDocLen float64
	shard     Shard
}

type Executor struct {
	shards []Shard
	logger *slog.Logger
}

func New(shards []Shard) *Executor {
	return &Executor{
		shards: shards,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// FromEngines adapts index engines to shards.
func FromEngines(engines []*indexer.Engine) []Shard {
	shards := make([]Shard, len(engines))
	for i, e := range engines {
		shards[i] = e
	}
	return shards
}

// Execute evaluates plan on every shard. A failing shard fails the query:
// partial postings would skew the collection statistics BM25 depends on.
func (ex *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if len(plan.Terms) == 0 {
		return &SearchResult{
			Query:   plan.RawQuery,
			Results: []ranker.ScoredDoc{},
		}, nil
	}
	shardResults, err := ex.fanOut(ctx, plan)
	if err != nil {
		return nil, err
	}

	mergedPostings := make(map[string]index.PostingList)
	termStats := make(map[string]int)
	docShard := make(map[string]Shard)
	var globalTotalDocs int64
	var globalTotalTokens float64
	for _, sr := range shardResults {
		globalTotalDocs += sr.totalDocs
		globalTotalTokens += sr.avgDocLen * float64(sr.totalDocs)
		for term, postings := range sr.postings {
			mergedPostings[term] = append(mergedPostings[term], postings...)
			for _, p := range postings {
				docShard[p.DocID] = sr.shard
			}
		}
	}
	var globalAvgDocLen float64
	if globalTotalDocs > 0 {
		globalAvgDocLen = globalTotalTokens / float64(globalTotalDocs)
	}

	excludeDocIDs := make(map[string]struct{})
	for _, term := range plan.ExcludeTerms {
		for _, p := range mergedPostings[term] {
			excludeDocIDs[p.DocID] = struct{}{}
		}
	}
	searchPostings := make(map[string]index.PostingList)
	for _, term := range plan.Terms {
		if postings, ok := mergedPostings[term]; ok {
			searchPostings[term] = postings
			termStats[term] = len(postings)
		} else if plan.Type == parser.QueryAND {
			// A missing term empties a conjunction.
			searchPostings = nil
			break
		}
	}

	var candidateDocIDs map[string]struct{}
	switch plan.Type {
	case parser.QueryAND:
		candidateDocIDs = intersectPostings(searchPostings)
	case parser.QueryOR:
		candidateDocIDs = unionPostings(searchPostings)
	}
	for docID := range excludeDocIDs {
		delete(candidateDocIDs, docID)
	}

	filteredPostings := make(map[string]index.PostingList)
	for term, postings := range searchPostings {
		filtered := make(index.PostingList, 0, len(postings))
		for _, p := range postings {
			if _, ok := candidateDocIDs[p.DocID]; ok {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			filteredPostings[term] = filtered
		}
	}

	params := ranker.RankParams{
		TotalDocs:    globalTotalDocs,
		AvgDocLength: globalAvgDocLen,
	}
	getDocInfo := func(docID string) ranker.DocInfo {
		if s, ok := docShard[docID]; ok {
			return ranker.DocInfo{DocLength: s.GetDocLength(docID)}
		}
		return ranker.DocInfo{}
	}
	ranked := ranker.Rank(filteredPostings, params, getDocInfo, limit)
	ex.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"shards_queried", len(shardResults),
		"candidates", len(candidateDocIDs),
		"results", len(ranked),
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		TotalHits: len(candidateDocIDs),
		Results:   ranked,
		TermStats: termStats,
	}, nil
}

func (ex *Executor) fanOut(ctx context.Context, plan *parser.QueryPlan) ([]shardResult, error) {
	allTerms := make([]string, 0, len(plan.Terms)+len(plan.ExcludeTerms))
	allTerms = append(allTerms, plan.Terms...)
	allTerms = append(allTerms, plan.ExcludeTerms...)

	results := make([]shardResult, len(ex.shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range ex.shards {
		g.Go(func() error {
			sr := shardResult{
				postings:  make(map[string]index.PostingList, len(allTerms)),
				totalDocs: s.GetTotalDocs(),
				avgDocLen: s.GetAvgDocLength(),
				shard:     s,
			}
			for _, term := range allTerms {
				if err := gctx.Err(); err != nil {
					return err
				}
				postings, err := s.Postings(term)
				if err != nil {
					return fmt.Errorf("%w: shard %d, term %q: %w", apperrors.ErrShardUnavailable, i, term, err)
				}
				if len(postings) > 0 {
					sr.postings[term] = postings
				}
			}
			results[i] = sr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		ex.logger.Error("shard query failed", "error", err)
		return nil, err
	}
	return results, nil
}

func intersectPostings(postingsPerTerm map[string]index.PostingList) map[string]struct{} {
	if len(postingsPerTerm) == 0 {
		return make(map[string]struct{})
	}
	var shortestTerm string
	shortestLen := int(^uint(0) >> 1)
	for term, postings := range postingsPerTerm {
		if len(postings) < shortestLen {
			shortestLen = len(postings)
			shortestTerm = term
		}
	}
	candidates := make(map[string]struct{})
	for _, p := range postingsPerTerm[shortestTerm] {
		candidates[p.DocID] = struct{}{}
	}
	for term, postings := range postingsPerTerm {
		if term == shortestTerm {
			continue
		}
		docSet := make(map[string]struct{}, len(postings))
		for _, p := range postings {
			docSet[p.DocID] = struct{}{}
		}
		for docID := range candidates {
			if _, exists := docSet[docID]; !exists {
				delete(candidates, docID)
			}
		}
	}
	return candidates
}

func unionPostings(postingsPerTerm map[string]index.PostingList) map[string]struct{} {
	result := make(map[string]struct{})
	for _, postings := range postingsPerTerm {
		for _, p := range postings {
			result[p.DocID] = struct{}{}
		}
	}
	return result
}
