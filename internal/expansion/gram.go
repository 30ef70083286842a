package expansion

import (
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// gramHashPrime is the multiplier of the polynomial gram hash.
const gramHashPrime = 7

// Gram is an ordered sequence of terms with a weight. Two grams are the same
// gram when their term sequences are equal.
type Gram struct {
	Terms  []string `json:"terms"`
	Weight float64  `json:"weight"`
}

// String returns the terms joined by single spaces.
func (g Gram) String() string {
	return strings.Join(g.Terms, " ")
}

// Hash returns the content hash of the gram's terms.
func (g Gram) Hash() uint64 {
	return hashTerms(g.Terms)
}

// hashTerms accumulates term hashes left to right, multiplying the running
// value by a small prime before each addition. Order matters.
func hashTerms(terms []string) uint64 {
	var acc uint64
	for _, t := range terms {
		acc = acc*gramHashPrime + xxhash.Sum64String(t)
	}
	return acc
}

// Compare orders grams by length first, with the shorter gram sorting after
// the longer one, then term by term. It returns -1, 0 or 1.
func Compare(a, b Gram) int {
	return compareTerms(a.Terms, b.Terms)
}

func compareTerms(a, b []string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return 1
		}
		return -1
	}
	for i := range a {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// weightGreater orders by descending weight. NaN weights sort last and equal
// weights fall back to Compare so the output order is deterministic.
func weightGreater(a, b Gram) bool {
	an, bn := math.IsNaN(a.Weight), math.IsNaN(b.Weight)
	switch {
	case an && bn:
		return Compare(a, b) < 0
	case an:
		return false
	case bn:
		return true
	case a.Weight != b.Weight:
		return a.Weight > b.Weight
	}
	return Compare(a, b) < 0
}
