package source

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/expansion"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
)

// Smoothing parameters.
const (
	DirichletMu      = 2500.0
	JelinekMercerMix = 0.4
	// unseenCount stands in for the background count of a gram that never
	// occurs in the collection, so its probability stays positive.
	unseenCount = 0.5
)

// Smoothing builds the "dirichlet" and "jm" (Jelinek-Mercer) strategies.
type Smoothing struct{}

var _ expansion.SmoothingFactory = Smoothing{}

func (Smoothing) Get(name string, gramCount, collectionCount float64) (expansion.TermScoreFunction, error) {
	if collectionCount <= 0 {
		return nil, fmt.Errorf("%w: no background counts for %q", apperrors.ErrEmptyCollection, name)
	}
	background := max(gramCount, unseenCount) / collectionCount
	switch name {
	case "dirichlet":
		return dirichlet{mu: DirichletMu, background: background}, nil
	case "jm":
		return jelinekMercer{lambda: JelinekMercerMix, background: background}, nil
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownSmoothing, name)
	}
}

type dirichlet struct {
	mu         float64
	background float64
}

func (d dirichlet) ScoreOccurrence(occurrences, contextLength float64) float64 {
	return math.Log((occurrences + d.mu*d.background) / (contextLength + d.mu))
}

type jelinekMercer struct {
	lambda     float64
	background float64
}

func (j jelinekMercer) ScoreOccurrence(occurrences, contextLength float64) float64 {
	var foreground float64
	if contextLength > 0 {
		foreground = occurrences / contextLength
	}
	return math.Log((1-j.lambda)*foreground + j.lambda*j.background)
}
