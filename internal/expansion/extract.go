package expansion

import "unicode"

// validStem reports whether stem is a non-empty run of letters and digits.
func validStem(stem string) bool {
	if stem == "" {
		return false
	}
	for _, r := range stem {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// resolveExtents clamps every result extent to its document vector. An End of
// zero means the whole document.
func resolveExtents(results []Result, vectors []DocumentVector) {
	for i := range results {
		n := len(vectors[i].Positions)
		r := &results[i]
		if r.End == 0 || r.End > n {
			r.End = n
		}
		if r.Begin < 0 {
			r.Begin = 0
		}
		if r.Begin > r.End {
			r.Begin = r.End
		}
	}
}

// extractGrams walks every document extent and counts each n-gram of length
// 1..maxGrams that starts inside it. Extents must already be resolved.
//
// Grams starting at a position are grown one token at a time. The first
// out-of-vocabulary token ends the growth, since every longer gram from the
// same start would contain it too.
func extractGrams(store *gramStore, results []Result, vectors []DocumentVector, maxGrams int) {
	buf := make([]string, 0, maxGrams)
	for doc, r := range results {
		v := vectors[doc]
		for j := r.Begin; j < r.End; j++ {
			longest := min(maxGrams, r.End-j)
			buf = buf[:0]
			for n := 1; n <= longest; n++ {
				pos := v.Positions[j+n-1]
				if pos <= 0 || pos >= len(v.Stems) || !validStem(v.Stems[pos]) {
					break
				}
				buf = append(buf, v.Stems[pos])
				store.observe(buf, doc)
			}
		}
	}
}
