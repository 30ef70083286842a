package indexer

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
)

func benchEngine(b *testing.B, docs int) *Engine {
	b.Helper()
	e, err := NewEngine(config.IndexerConfig{
		DataDir:         b.TempDir(),
		SegmentMaxSize:  1 << 30,
		InMemoryVectors: true,
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { e.Close() })
	for i := 0; i < docs; i++ {
		if err := e.IndexDocument(fmt.Sprintf("doc-%d", i), "graph walk", "random walk over the query graph with restart"); err != nil {
			b.Fatal(err)
		}
	}
	return e
}

func BenchmarkEngineIndex(b *testing.B) {
	for _, preload := range []int{0, 1000} {
		b.Run(fmt.Sprintf("preloaded_%d", preload), func(b *testing.B) {
			e := benchEngine(b, preload)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := e.IndexDocument(fmt.Sprintf("bench-%d", i), "title", "expansion grams from feedback documents"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkPhraseCount(b *testing.B) {
	e := benchEngine(b, 2000)
	phrase := []string{"graph", "walk"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.PhraseCount(phrase); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPostingsAfterFlush(b *testing.B) {
	e := benchEngine(b, 2000)
	if err := e.Flush(); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Postings("walk"); err != nil {
			b.Fatal(err)
		}
	}
}
