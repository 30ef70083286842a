package expansion

import (
	"context"
	"fmt"
	"math"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
)

// vectorOf builds a document vector from tokens. An empty token stands for a
// filtered position.
func vectorOf(tokens ...string) DocumentVector {
	v := DocumentVector{Stems: []string{""}}
	index := map[string]int{}
	for _, t := range tokens {
		if t == "" {
			v.Positions = append(v.Positions, 0)
			continue
		}
		pos, ok := index[t]
		if !ok {
			pos = len(v.Stems)
			index[t] = pos
			v.Stems = append(v.Stems, t)
		}
		v.Positions = append(v.Positions, pos)
	}
	return v
}

type fakeCorpus struct {
	docs      map[string]DocumentVector
	results   []Result
	err       error
	lastLimit int
}

func newFakeCorpus() *fakeCorpus {
	return &fakeCorpus{docs: map[string]DocumentVector{}}
}

// add registers a document and appends it to the canned result list.
func (c *fakeCorpus) add(id string, score float64, text string) {
	c.docs[id] = vectorOf(strings.Fields(text)...)
	c.results = append(c.results, Result{DocumentID: id, Score: score})
}

func (c *fakeCorpus) RunQuery(_ context.Context, _ string, maxResults int) ([]Result, error) {
	c.lastLimit = maxResults
	if c.err != nil {
		return nil, c.err
	}
	out := make([]Result, min(len(c.results), maxResults))
	copy(out, c.results)
	return out, nil
}

func (c *fakeCorpus) DocumentVectors(_ context.Context, ids []string) ([]DocumentVector, error) {
	out := make([]DocumentVector, len(ids))
	for i, id := range ids {
		v, ok := c.docs[id]
		if !ok {
			return nil, fmt.Errorf("unknown document %s", id)
		}
		out[i] = v
	}
	return out, nil
}

type fakeStats struct {
	stemCalls       []string
	expressionCalls []string
	empty           bool
}

func (s *fakeStats) TermCount(context.Context) (float64, error) {
	if s.empty {
		return 0, nil
	}
	return 1000, nil
}

func (s *fakeStats) StemCount(_ context.Context, stem string) (float64, error) {
	s.stemCalls = append(s.stemCalls, stem)
	return 10, nil
}

func (s *fakeStats) ExpressionCount(_ context.Context, phrase []string) (float64, error) {
	s.expressionCalls = append(s.expressionCalls, strings.Join(phrase, " "))
	return 1, nil
}

// laplace scores (occ+1)/(len+2) in log space.
type laplace struct{}

func (laplace) ScoreOccurrence(occ, length float64) float64 {
	return math.Log((occ + 1) / (length + 2))
}

type fakeSmoothing struct {
	known string
}

func (f fakeSmoothing) Get(name string, _, collection float64) (TermScoreFunction, error) {
	if name != f.known {
		return nil, fmt.Errorf("%w: no strategy named %s", apperrors.ErrUnknownSmoothing, name)
	}
	if collection <= 0 {
		return nil, apperrors.ErrEmptyCollection
	}
	return laplace{}, nil
}

// weightOf returns the weight of the gram printed as text.
func weightOf(grams []Gram, text string) (float64, bool) {
	for _, g := range grams {
		if g.String() == text {
			return g.Weight, true
		}
	}
	return 0, false
}

func gramStrings(grams []Gram) []string {
	out := make([]string, len(grams))
	for i, g := range grams {
		out[i] = g.String()
	}
	return out
}
