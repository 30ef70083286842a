package ranker

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/index"
	"github.com/stretchr/testify/assert"
)

func TestRankOrdersByScore(t *testing.T) {
	postings := map[string]index.PostingList{
		"graph": {
			{DocID: "short", Frequency: 2},
			{DocID: "long", Frequency: 2},
		},
	}
	lengths := map[string]int{"short": 5, "long": 50}
	got := Rank(postings, RankParams{TotalDocs: 10, AvgDocLength: 20}, func(id string) DocInfo {
		return DocInfo{DocLength: lengths[id]}
	}, 0)
	assert.Len(t, got, 2)
	assert.Equal(t, "short", got[0].DocID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRankTiesAndLimit(t *testing.T) {
	postings := map[string]index.PostingList{
		"walk": {{DocID: "b", Frequency: 1}, {DocID: "a", Frequency: 1}, {DocID: "c", Frequency: 1}},
	}
	got := Rank(postings, RankParams{TotalDocs: 5, AvgDocLength: 4}, func(string) DocInfo {
		return DocInfo{DocLength: 4}
	}, 2)
	assert.Equal(t, []ScoredDoc{{DocID: "a", Score: got[0].Score}, {DocID: "b", Score: got[0].Score}}, got)
}

func TestIDFAndTFNorm(t *testing.T) {
	assert.Greater(t, idf(100, 1), idf(100, 50))
	assert.Greater(t, idf(10, 10), 0.0)
	assert.Zero(t, tfNorm(1, 10, 0, DefaultK1, DefaultB))
}

func TestRankKeepsFullPrecision(t *testing.T) {
	postings := map[string]index.PostingList{"walk": {{DocID: "a", Frequency: 1}}}
	got := Rank(postings, RankParams{TotalDocs: 3, AvgDocLength: 3}, func(string) DocInfo {
		return DocInfo{DocLength: 3}
	}, 0)
	assert.Len(t, got, 1)
	assert.InDelta(t, math.Log(2/1.5+1), got[0].Score, 1e-15)
}

func TestRankLengthNormalisation(t *testing.T) {
	postings := map[string]index.PostingList{
		"graph": {{DocID: "short", Frequency: 1}, {DocID: "long", Frequency: 1}},
	}
	lengths := map[string]int{"short": 2, "long": 40}
	info := func(id string) DocInfo { return DocInfo{DocLength: lengths[id]} }

	// With B close to zero document length no longer matters.
	flat := Rank(postings, RankParams{TotalDocs: 10, AvgDocLength: 20, B: 1e-9}, info, 0)
	assert.InDelta(t, flat[0].Score, flat[1].Score, 1e-6)

	normalised := Rank(postings, RankParams{TotalDocs: 10, AvgDocLength: 20}, info, 0)
	assert.Equal(t, "short", normalised[0].DocID)
	assert.Greater(t, normalised[0].Score-normalised[1].Score, 0.1)
}
