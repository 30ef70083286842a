package expansion

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

var benchWords = strings.Fields(`graph walk random restart query expans term
document retriev rank score weight gram vocabulari matrix diffus seed
feedback posterior collect smooth dirichlet model index shard`)

func benchCorpus(docs, length int) *fakeCorpus {
	rng := rand.New(rand.NewSource(1))
	c := newFakeCorpus()
	for d := 0; d < docs; d++ {
		words := make([]string, length)
		for i := range words {
			words[i] = benchWords[rng.Intn(len(benchWords))]
		}
		c.add(fmt.Sprintf("doc-%d", d), -float64(d), strings.Join(words, " "))
	}
	return c
}

func BenchmarkRandomWalk(b *testing.B) {
	for _, n := range []int{50, 200, 500} {
		b.Run(fmt.Sprintf("grams_%d", n), func(b *testing.B) {
			m := NewMatrix(n)
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					if i != j && (i+j)%3 == 0 {
						m.Set(i, j, 1/float64(n))
					}
				}
			}
			scores := make([]float64, n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for k := range scores {
					scores[k] = 0
				}
				scores[0] = 1
				if err := RandomWalk(context.Background(), m, scores, DefaultWalkOptions()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkGenerate(b *testing.B) {
	corpus := benchCorpus(20, 200)
	for _, grams := range []int{1, 2, 3} {
		b.Run(fmt.Sprintf("max_grams_%d", grams), func(b *testing.B) {
			opts := DefaultOptions()
			opts.MaxGrams = grams
			opts.FeedbackDocs = 20
			opts.MaxVocabulary = 0
			model, err := NewModel(Sources{Retriever: corpus, Vectors: corpus}, opts)
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := model.Generate(context.Background(), "graph walk"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
