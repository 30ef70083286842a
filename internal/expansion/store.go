package expansion

import "fmt"

// Occurrence is the number of times a gram was seen in one document of the
// result set. Doc is the document's position in the result list.
type Occurrence struct {
	Doc   int
	Count int
}

// gramRecord owns the canonical Gram for one distinct term sequence and its
// per-document occurrences, ordered by Doc.
type gramRecord struct {
	gram        Gram
	occurrences []Occurrence
	total       int
}

// gramStore is the arena holding every gram seen during one Generate call.
// Records are addressed by their index; buckets maps a content hash to the
// records sharing it.
type gramStore struct {
	records []gramRecord
	buckets map[uint64][]int
}

func newGramStore() *gramStore {
	return &gramStore{
		buckets: make(map[uint64][]int),
	}
}

// Len returns the number of distinct grams.
func (s *gramStore) Len() int {
	return len(s.records)
}

func (s *gramStore) record(idx int) *gramRecord {
	if idx < 0 || idx >= len(s.records) {
		panic(fmt.Sprintf("expansion: gram record %d out of range (%d records)", idx, len(s.records)))
	}
	return &s.records[idx]
}

// find returns the record index holding terms.
func (s *gramStore) find(terms []string) (int, bool) {
	return s.findHashed(hashTerms(terms), terms)
}

func (s *gramStore) findHashed(h uint64, terms []string) (int, bool) {
	for _, idx := range s.buckets[h] {
		if compareTerms(s.records[idx].gram.Terms, terms) == 0 {
			return idx, true
		}
	}
	return 0, false
}

// observe counts one occurrence of terms in document doc. Documents must be
// observed in ascending order. The terms slice is only copied when it
// introduces a new gram, so callers may reuse their buffer.
func (s *gramStore) observe(terms []string, doc int) int {
	h := hashTerms(terms)
	idx, ok := s.findHashed(h, terms)
	if !ok {
		owned := make([]string, len(terms))
		copy(owned, terms)
		idx = len(s.records)
		s.records = append(s.records, gramRecord{
			gram:        Gram{Terms: owned},
			occurrences: []Occurrence{{Doc: doc, Count: 1}},
			total:       1,
		})
		s.buckets[h] = append(s.buckets[h], idx)
		return idx
	}
	rec := &s.records[idx]
	rec.total++
	if last := len(rec.occurrences) - 1; rec.occurrences[last].Doc == doc {
		rec.occurrences[last].Count++
	} else {
		rec.occurrences = append(rec.occurrences, Occurrence{Doc: doc, Count: 1})
	}
	return idx
}

// grams copies out every gram with its current weight, in insertion order.
func (s *gramStore) grams() []Gram {
	out := make([]Gram, len(s.records))
	for i := range s.records {
		out[i] = s.records[i].gram
	}
	return out
}
