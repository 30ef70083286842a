package expansion

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomWalkDecaysWithoutNeighbours(t *testing.T) {
	for _, k := range []int{1, 2, 5, 20} {
		m := NewMatrix(3)
		scores := []float64{1, 0, 0}
		require.NoError(t, RandomWalk(context.Background(), m, scores, WalkOptions{Lambda: DefaultLambda, Iterations: k}))
		assert.InEpsilon(t, math.Pow(0.3, float64(k)), scores[0], 1e-12, "k=%d", k)
		assert.Equal(t, 0.0, scores[1])
		assert.Equal(t, 0.0, scores[2])
	}
}

func TestRandomWalkZeroIterations(t *testing.T) {
	m := NewMatrix(2)
	m.Set(0, 1, 4)
	scores := []float64{0.5, 0.5}
	require.NoError(t, RandomWalk(context.Background(), m, scores, WalkOptions{Lambda: DefaultLambda}))
	assert.Equal(t, []float64{0.5, 0.5}, scores)
}

func TestRandomWalkUpdatesInPlace(t *testing.T) {
	m := NewMatrix(2)
	m.Set(0, 1, 1)
	m.Set(1, 0, 1)
	scores := []float64{1, 0}
	require.NoError(t, RandomWalk(context.Background(), m, scores, WalkOptions{Lambda: 0.5, Iterations: 1}))

	// The second gram already sees the first gram's updated score of 0.5; a
	// synchronous update would give it 0.5 instead of 0.25.
	assert.Equal(t, 0.5, scores[0])
	assert.Equal(t, 0.25, scores[1])
}

func TestRandomWalkDefaults(t *testing.T) {
	opts := DefaultWalkOptions()
	assert.Equal(t, 0.3, opts.Lambda)
	assert.Equal(t, 500, opts.Iterations)

	m := NewMatrix(1)
	scores := []float64{1}
	require.NoError(t, RandomWalk(context.Background(), m, scores, opts))
	assert.InEpsilon(t, math.Pow(0.3, 500), scores[0], 1e-9)
}

func TestRandomWalkOverflowsDenseGraph(t *testing.T) {
	m := NewMatrix(2)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			m.Set(i, j, 4)
		}
	}
	scores := []float64{0.5, 0.5}
	require.NoError(t, RandomWalk(context.Background(), m, scores, DefaultWalkOptions()))
	assert.True(t, math.IsInf(scores[0], 1))
	assert.True(t, math.IsInf(scores[1], 1))
}

func TestRandomWalkStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMatrix(2)
	m.Set(0, 1, 1)
	scores := []float64{1, 0}
	err := RandomWalk(ctx, m, scores, DefaultWalkOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []float64{1, 0}, scores)
}

func TestRandomWalkEmpty(t *testing.T) {
	require.NoError(t, RandomWalk(context.Background(), NewMatrix(0), nil, DefaultWalkOptions()))
	assert.Panics(t, func() {
		_ = RandomWalk(context.Background(), NewMatrix(2), []float64{1}, DefaultWalkOptions())
	})
}

func TestSaturate(t *testing.T) {
	scores := []float64{0, 1e300, math.Inf(1), math.NaN(), math.Inf(-1)}
	assert.Equal(t, 3, saturate(scores))
	assert.Equal(t, []float64{0, 1e300, math.MaxFloat64, 0, -math.MaxFloat64}, scores)
	assert.Equal(t, 0, saturate([]float64{-1, 2}))
}
