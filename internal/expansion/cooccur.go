package expansion

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Matrix is a dense square matrix stored row-major.
type Matrix struct {
	n     int
	cells []float64
}

// NewMatrix allocates an n×n zero matrix.
func NewMatrix(n int) *Matrix {
	return &Matrix{n: n, cells: make([]float64, n*n)}
}

// Size returns n.
func (m *Matrix) Size() int {
	return m.n
}

// At returns cell (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.cells[i*m.n+j]
}

// Set overwrites cell (i, j).
func (m *Matrix) Set(i, j int, v float64) {
	m.cells[i*m.n+j] = v
}

// Row returns row i. The slice aliases the matrix.
func (m *Matrix) Row(i int) []float64 {
	return m.cells[i*m.n : (i+1)*m.n]
}

// docEntry is one qualifying gram in a document's reverse list.
type docEntry struct {
	id    int
	count int
}

// reverseIndex lists, per document, the qualifying grams it contains with
// their counts. Each list is ordered by gram id.
func reverseIndex(store *gramStore, vocab *vocabulary, numDocs int) [][]docEntry {
	docs := make([][]docEntry, numDocs)
	for id := 0; id < vocab.Size(); id++ {
		rec := store.record(vocab.record(id))
		for _, occ := range rec.occurrences {
			if occ.Doc < 0 || occ.Doc >= numDocs {
				panic(fmt.Sprintf("expansion: occurrence for document %d outside result set of %d", occ.Doc, numDocs))
			}
			docs[occ.Doc] = append(docs[occ.Doc], docEntry{id: id, count: occ.Count})
		}
	}
	return docs
}

// buildCooccurrence computes cell (i, j) = Σ_d count_i(d) · count_j(d) over
// every document d containing both grams. Both axes are addressed by gram id,
// so the matrix is symmetric. Rows are filled concurrently by up to workers
// goroutines; each row is owned by exactly one of them.
func buildCooccurrence(ctx context.Context, store *gramStore, vocab *vocabulary, numDocs, workers int) (*Matrix, error) {
	v := vocab.Size()
	m := NewMatrix(v)
	if v == 0 {
		return m, nil
	}
	docs := reverseIndex(store, vocab, numDocs)

	if workers <= 0 {
		workers = 1
	}
	chunk := (v + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < v; start += chunk {
		end := min(start+chunk, v)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				row := m.Row(i)
				for _, occ := range store.record(vocab.record(i)).occurrences {
					for _, e := range docs[occ.Doc] {
						row[e.id] += float64(occ.Count * e.count)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building co-occurrence matrix: %w", err)
	}
	return m, nil
}
