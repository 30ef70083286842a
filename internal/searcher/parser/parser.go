// Package parser turns a raw search query into a QueryPlan of analysed
// terms. Terms are combined with AND unless the query says OR; NOT excludes
// the word that follows it.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

type QueryPlan struct {
	Terms        []string
	Type         QueryType
	ExcludeTerms []string
	RawQuery     string
}

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	words := strings.Fields(query)
	excludeNext := false
	for i := 0; i < len(words); i++ {
		upper := strings.ToUpper(words[i])
		switch upper {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		terms := tokenizer.Terms(words[i])
		if len(terms) == 0 {
			continue
		}
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, terms...)
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, terms...)
		}
	}
	return plan
}

// FromTerms builds a plan from terms that are already analysed.
func FromTerms(terms []string, queryType QueryType) *QueryPlan {
	return &QueryPlan{
		Terms:        terms,
		Type:         queryType,
		ExcludeTerms: []string{},
		RawQuery:     strings.Join(terms, " "),
	}
}
