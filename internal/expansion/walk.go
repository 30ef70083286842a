package expansion

import (
	"context"
	"fmt"
	"math"
)

const (
	// DefaultLambda is the share of its own score a gram keeps each iteration.
	DefaultLambda = 0.3
	// DefaultIterations is the fixed number of diffusion passes.
	DefaultIterations = 500
)

// WalkOptions controls the diffusion loop.
type WalkOptions struct {
	Lambda     float64
	Iterations int
}

// DefaultWalkOptions returns λ = 0.3 and 500 iterations.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{Lambda: DefaultLambda, Iterations: DefaultIterations}
}

// RandomWalk diffuses scores through m for a fixed number of iterations:
//
//	score[i] = λ·score[i] + (1-λ)·Σ_j m[i][j]·score[j]
//
// Updates are applied in place in id order, so a gram later in the pass
// already sees the new scores of the grams before it. Rows are not
// normalised and no convergence test is made. ctx is checked before every
// pass; a cancelled walk leaves scores partially diffused.
func RandomWalk(ctx context.Context, m *Matrix, scores []float64, opts WalkOptions) error {
	n := m.Size()
	if len(scores) != n {
		panic("expansion: score vector does not match matrix size")
	}
	lambda := opts.Lambda
	for it := 0; it < opts.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("random walk stopped after %d of %d iterations: %w", it, opts.Iterations, err)
		}
		for i := 0; i < n; i++ {
			row := m.Row(i)
			var diffused float64
			for j, w := range row {
				// Skipping empty cells keeps an infinite score from turning
				// into NaN through 0·Inf.
				if w == 0 {
					continue
				}
				diffused += w * scores[j]
			}
			scores[i] = lambda*scores[i] + (1-lambda)*diffused
		}
	}
	return nil
}

// seedWeights gives 1 to every qualifying gram whose printed form is one of
// the seeds and 0 to the rest, then divides by the number of matches. When no
// gram matches, every weight stays 0 and matched is 0.
func seedWeights(store *gramStore, vocab *vocabulary, seeds SeedSet) (weights []float64, matched int) {
	weights = make([]float64, vocab.Size())
	for id := range weights {
		if seeds.Contains(store.record(vocab.record(id)).gram.String()) {
			weights[id] = 1
			matched++
		}
	}
	if matched == 0 {
		return weights, 0
	}
	for id := range weights {
		weights[id] /= float64(matched)
	}
	return weights, matched
}

// saturate replaces scores that left the float64 range so they can be
// serialised: +Inf becomes math.MaxFloat64 and NaN becomes 0. Ordering among
// finite scores is unchanged. It returns the number of scores replaced.
func saturate(scores []float64) int {
	n := 0
	for i, s := range scores {
		switch {
		case math.IsInf(s, 1):
			scores[i] = math.MaxFloat64
		case math.IsInf(s, -1):
			scores[i] = -math.MaxFloat64
		case math.IsNaN(s):
			scores[i] = 0
		default:
			continue
		}
		n++
	}
	return n
}
