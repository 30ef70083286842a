package expansion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
)

// lmScorer weights every qualifying gram by its expected probability under
// the feedback documents:
//
//	weight(g) = Σ_d P(d|q) · P(g|d)
//
// P(g|d) is the smoothed occurrence probability when a smoothing strategy is
// configured and the maximum-likelihood estimate otherwise.
type lmScorer struct {
	stats     CollectionStats
	factory   SmoothingFactory
	smoothing string
}

func (s *lmScorer) score(ctx context.Context, store *gramStore, vocab *vocabulary, results []Result) error {
	var collection float64
	if s.smoothing != "" {
		if s.factory == nil {
			return apperrors.Newf(apperrors.ErrUnknownSmoothing, http.StatusBadRequest,
				"no smoothing factory configured for %q", s.smoothing)
		}
		if s.stats == nil {
			return fmt.Errorf("smoothing %q needs collection statistics", s.smoothing)
		}
		var err error
		if collection, err = s.stats.TermCount(ctx); err != nil {
			return fmt.Errorf("fetching collection term count: %w", err)
		}
	}

	for id := 0; id < vocab.Size(); id++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := store.record(vocab.record(id))

		var fn TermScoreFunction
		if s.smoothing != "" {
			background, err := s.backgroundCount(ctx, rec.gram.Terms)
			if err != nil {
				return fmt.Errorf("background count for %q: %w", rec.gram.String(), err)
			}
			fn, err = s.factory.Get(s.smoothing, background, collection)
			if err != nil {
				return smoothingError(s.smoothing, err)
			}
		}

		// Occurrences and results are both ordered by document index, so a
		// single cursor over the occurrences is enough. Documents after the
		// gram's last occurrence contribute nothing, smoothed or not.
		var weight float64
		next := 0
		for doc := 0; doc < len(results) && next < len(rec.occurrences); doc++ {
			r := results[doc]
			var occ float64
			if rec.occurrences[next].Doc == doc {
				occ = float64(rec.occurrences[next].Count)
				next++
			}
			length := float64(r.Length())
			var termScore float64
			switch {
			case fn != nil:
				termScore = math.Exp(fn.ScoreOccurrence(occ, length))
			case length > 0:
				termScore = occ / length
			default:
				continue
			}
			weight += r.Score * termScore
		}
		rec.gram.Weight = weight
	}
	return nil
}

// smoothingError keeps an empty collection apart from a strategy the
// factory does not know.
func smoothingError(name string, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrEmptyCollection):
		return fmt.Errorf("smoothing %q: %w", name, err)
	case errors.Is(err, apperrors.ErrUnknownSmoothing):
		return apperrors.Newf(apperrors.ErrUnknownSmoothing, http.StatusBadRequest,
			"smoothing %q: %v", name, err)
	default:
		return fmt.Errorf("smoothing %q: %w", name, err)
	}
}

func (s *lmScorer) backgroundCount(ctx context.Context, terms []string) (float64, error) {
	if len(terms) == 1 {
		return s.stats.StemCount(ctx, terms[0])
	}
	return s.stats.ExpressionCount(ctx, terms)
}
