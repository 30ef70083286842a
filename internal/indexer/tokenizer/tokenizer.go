// Package tokenizer provides text analysis for the index. It normalises
// input to NFKC lower case, splits on non-alphanumeric boundaries, marks
// stop-words and applies the Snowball English stemmer.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its word position in the
// original text. Positions count every word, including the ones dropped as
// stop-words, so adjacency in the text is adjacency of positions.
type Token struct {
	Term     string
	Position int
}

// Analyze returns one entry per word of text. Indexable words map to their
// stem; stop-words and single-character words map to "".
func Analyze(text string) []string {
	words := strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, len(words))
	for i, word := range words {
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		out[i] = Stem(word)
	}
	return out
}

// Tokenize breaks text into a slice of stemmed, lowercased Tokens with
// stop-words removed.
func Tokenize(text string) []Token {
	words := Analyze(text)
	tokens := make([]Token, 0, len(words))
	for pos, term := range words {
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{Term: term, Position: pos})
	}
	return tokens
}

// Terms returns the indexable stems of text in order.
func Terms(text string) []string {
	tokens := Tokenize(text)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}

// Normalize applies NFKC and lower-cases text.
func Normalize(text string) string {
	return strings.ToLower(norm.NFKC.String(text))
}

// Stem returns the Snowball English stem of a lower-case word.
func Stem(word string) string {
	if stemmed := english.Stem(word, true); stemmed != "" {
		return stemmed
	}
	return word
}
