package expansion

import "strings"

// Tokenize splits s on whitespace. No case folding or punctuation handling is
// applied; the caller decides how the query was normalised.
func Tokenize(s string) []string {
	return strings.Fields(s)
}

// SeedSet is the set of space-joined n-gram strings derived from a query.
type SeedSet map[string]struct{}

// Contains reports whether text is one of the seeds.
func (s SeedSet) Contains(text string) bool {
	_, ok := s[text]
	return ok
}

// QueryGrams returns every contiguous n-gram of length 1..maxGrams in the
// tokenized query. Windows that run past the last token are truncated rather
// than dropped, so the tail of the query contributes its shorter grams again;
// the set collapses those duplicates.
func QueryGrams(query string, maxGrams int) SeedSet {
	tokens := Tokenize(query)
	seeds := make(SeedSet, len(tokens)*max(maxGrams, 1))
	for i := range tokens {
		for n := 1; n <= maxGrams; n++ {
			end := min(i+n, len(tokens))
			seeds[strings.Join(tokens[i:end], " ")] = struct{}{}
		}
	}
	return seeds
}
