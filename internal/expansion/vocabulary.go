package expansion

import (
	"fmt"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
)

// vocabulary assigns dense ids 0..V-1 to the qualifying grams of a store: the
// grams whose total occurrence count exceeds the minimum frequency.
type vocabulary struct {
	records []int // id -> record index
	ids     []int // record index -> id, -1 when the gram does not qualify
}

// buildVocabulary assigns ids in record order. It refuses to build a
// vocabulary larger than maxSize when maxSize is positive, since the
// co-occurrence matrix grows with its square.
func buildVocabulary(store *gramStore, minFrequency, maxSize int) (*vocabulary, error) {
	v := &vocabulary{
		ids: make([]int, store.Len()),
	}
	for idx := range store.records {
		if store.records[idx].total <= minFrequency {
			v.ids[idx] = -1
			continue
		}
		v.ids[idx] = len(v.records)
		v.records = append(v.records, idx)
	}
	if maxSize > 0 && len(v.records) > maxSize {
		return nil, apperrors.Newf(apperrors.ErrVocabularyTooLarge, http.StatusUnprocessableEntity,
			"%d qualifying grams exceed the limit of %d", len(v.records), maxSize)
	}
	return v, nil
}

// Size returns V, the number of qualifying grams.
func (v *vocabulary) Size() int {
	return len(v.records)
}

// record returns the store index of the gram with the given id.
func (v *vocabulary) record(id int) int {
	if id < 0 || id >= len(v.records) {
		panic(fmt.Sprintf("expansion: gram id %d out of range (vocabulary size %d)", id, len(v.records)))
	}
	return v.records[id]
}

// id returns the id of the gram at the given store index.
func (v *vocabulary) id(recordIdx int) (int, bool) {
	id := v.ids[recordIdx]
	return id, id >= 0
}
