// Package ranker scores candidate documents with Okapi BM25. The scores
// double as log-domain relevance for expansion feedback, so they are kept
// at full precision.
package ranker

import (
	"cmp"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/index"
)

// Default BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// RankParams carries collection statistics and BM25 tuning. Zero K1 or B
// take the defaults.
type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
	K1           float64
	B            float64
}

type DocInfo struct {
	DocLength int
}

// Rank sums the BM25 contribution of every query stem per document and
// returns the best limit documents, ties broken by document ID. A
// non-positive limit returns all of them.
func Rank(
	postingsPerTerm map[string]index.PostingList,
	params RankParams,
	getDocInfo func(docID string) DocInfo,
	limit int,
) []ScoredDoc {
	k1 := cmp.Or(params.K1, DefaultK1)
	b := cmp.Or(params.B, DefaultB)

	scores := make(map[string]float64)
	for _, postings := range postingsPerTerm {
		idf := idf(params.TotalDocs, int64(len(postings)))
		for _, p := range postings {
			length := float64(getDocInfo(p.DocID).DocLength)
			scores[p.DocID] += idf * tfNorm(float64(p.Frequency), length, params.AvgDocLength, k1, b)
		}
	}

	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	slices.SortFunc(result, func(x, y ScoredDoc) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		return cmp.Compare(x.DocID, y.DocID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// idf is the BM25+ variant, positive even for stems in most documents.
func idf(totalDocs, docFreq int64) float64 {
	return math.Log((float64(totalDocs)-float64(docFreq))/(float64(docFreq)+0.5) + 1)
}

func tfNorm(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	return termFreq * (k1 + 1) / (termFreq + k1*(1-b+b*docLength/avgDocLength))
}
