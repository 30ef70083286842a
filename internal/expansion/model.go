// Package expansion builds query-expansion models from pseudo-relevance
// feedback. A Model extracts n-grams from the top retrieved documents, links
// them by how often they appear together, and diffuses the query's own grams
// through that graph to rank the candidates.
package expansion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
)

var tracer = otel.Tracer("expansion.model")

// Scorer selects how gram weights are produced.
type Scorer string

const (
	ScorerRandomWalk    Scorer = "randomwalk"
	ScorerLanguageModel Scorer = "languagemodel"
)

// ParseScorer maps a scorer name to a Scorer. The empty string selects the
// random walk.
func ParseScorer(name string) (Scorer, error) {
	switch Scorer(name) {
	case "", ScorerRandomWalk:
		return ScorerRandomWalk, nil
	case ScorerLanguageModel:
		return ScorerLanguageModel, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown scorer %q", name)
}

// State is the pipeline stage a Model last completed.
type State int

const (
	StateIdle State = iota
	StateResultsAcquired
	StateNormalized
	StateDocumentsExtracted
	StateGramsCounted
	StateGraphBuilt
	StateScored
	StateSorted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResultsAcquired:
		return "results_acquired"
	case StateNormalized:
		return "normalized"
	case StateDocumentsExtracted:
		return "documents_extracted"
	case StateGramsCounted:
		return "grams_counted"
	case StateGraphBuilt:
		return "graph_built"
	case StateScored:
		return "scored"
	case StateSorted:
		return "sorted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Model.
type Options struct {
	// MaxGrams is the longest n-gram extracted from documents and the query.
	MaxGrams int
	// FeedbackDocs is how many results Generate asks the retriever for.
	FeedbackDocs int
	// MinFrequency excludes grams seen this many times or fewer from the
	// graph. Zero admits every gram.
	MinFrequency int
	// MaxVocabulary rejects runs with more qualifying grams. Zero disables
	// the check.
	MaxVocabulary int
	Lambda        float64
	Iterations    int
	Scorer        Scorer
	// Smoothing names the strategy the language-model scorer asks the
	// SmoothingFactory for. Empty uses maximum-likelihood estimates.
	Smoothing string
	// Workers bounds the goroutines filling the co-occurrence matrix.
	Workers int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxGrams:      2,
		FeedbackDocs:  10,
		MinFrequency:  0,
		MaxVocabulary: 4000,
		Lambda:        DefaultLambda,
		Iterations:    DefaultIterations,
		Scorer:        ScorerRandomWalk,
		Workers:       4,
	}
}

func (o Options) validate() error {
	switch {
	case o.MaxGrams < 1:
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "max grams must be at least 1")
	case o.FeedbackDocs < 0:
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "feedback docs must not be negative")
	case o.MinFrequency < 0:
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "min frequency must not be negative")
	case o.MaxVocabulary < 0:
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "max vocabulary must not be negative")
	case o.Lambda < 0 || o.Lambda > 1:
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "lambda %v outside [0, 1]", o.Lambda)
	case o.Iterations < 0:
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "iterations must not be negative")
	}
	_, err := ParseScorer(string(o.Scorer))
	return err
}

// QueryError reports a run that failed while acquiring results for Query.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Model runs the expansion pipeline. Each Generate call starts from an empty
// gram store; only the final grams and results are kept between calls. A
// Model must not be used by more than one goroutine at a time.
type Model struct {
	sources Sources
	opts    Options
	logger  *slog.Logger

	state     State
	grams     []Gram
	results   []Result
	vocabSize int
	saturated int
}

// NewModel validates opts and returns an idle Model.
func NewModel(sources Sources, opts Options) (*Model, error) {
	if opts.Scorer == "" {
		opts.Scorer = ScorerRandomWalk
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if sources.Vectors == nil {
		return nil, errors.New("expansion: a vector provider is required")
	}
	return &Model{
		sources: sources,
		opts:    opts,
		logger:  slog.Default().With("component", "expansion-model"),
	}, nil
}

// Generate retrieves the top results for query and builds the model from
// them.
func (m *Model) Generate(ctx context.Context, query string) error {
	return m.run(ctx, query, func(ctx context.Context) ([]Result, error) {
		if m.sources.Retriever == nil {
			return nil, &QueryError{Query: query, Err: fmt.Errorf("%w: no retriever configured", apperrors.ErrRetrieval)}
		}
		results, err := m.sources.Retriever.RunQuery(ctx, query, m.opts.FeedbackDocs)
		if err != nil {
			return nil, &QueryError{Query: query, Err: fmt.Errorf("%w: %w", apperrors.ErrRetrieval, err)}
		}
		return results, nil
	})
}

// GenerateFromResults builds the model from results the caller already
// retrieved for query. Scores must be log-domain; results is not modified.
func (m *Model) GenerateFromResults(ctx context.Context, query string, results []Result) error {
	return m.run(ctx, query, func(context.Context) ([]Result, error) {
		return results, nil
	})
}

// Grams returns the grams of the last successful run, best first.
func (m *Model) Grams() []Gram {
	return m.grams
}

// Results returns the last successful run's results with posterior scores.
func (m *Model) Results() []Result {
	return m.results
}

// VocabularySize returns the number of grams that took part in scoring in the
// last successful run.
func (m *Model) VocabularySize() int {
	return m.vocabSize
}

// Saturated returns how many gram weights of the last successful run left
// the float64 range during the random walk and were clamped to
// math.MaxFloat64. The walk does not normalise, so long walks over dense
// graphs saturate routinely.
func (m *Model) Saturated() int {
	return m.saturated
}

// State returns the last stage completed. A successful run ends in
// StateSorted; a failed one leaves the Model idle.
func (m *Model) State() State {
	return m.state
}

func (m *Model) reset() {
	m.state = StateIdle
	m.grams = nil
	m.results = nil
	m.vocabSize = 0
	m.saturated = 0
}

func (m *Model) run(ctx context.Context, query string, acquire func(context.Context) ([]Result, error)) (err error) {
	m.reset()
	ctx, span := tracer.Start(ctx, "Model.Generate",
		trace.WithAttributes(
			attribute.String("query", query),
			attribute.String("scorer", string(m.opts.Scorer)),
			attribute.Int("max_grams", m.opts.MaxGrams),
		),
	)
	defer func() {
		if err != nil {
			m.reset()
			span.RecordError(err)
			span.SetStatus(codes.Error, "expansion failed")
		}
		span.End()
	}()

	var results []Result
	err = phase(ctx, "acquire_results", func(ctx context.Context) error {
		in, err := acquire(ctx)
		if err != nil {
			return err
		}
		results = make([]Result, len(in))
		copy(results, in)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("results", len(results)))
		return nil
	})
	if err != nil {
		return err
	}
	m.state = StateResultsAcquired

	LogToPosterior(results)
	m.state = StateNormalized

	store := newGramStore()
	err = phase(ctx, "extract", func(ctx context.Context) error {
		vectors, err := m.fetchVectors(ctx, query, results)
		if err != nil {
			return err
		}
		resolveExtents(results, vectors)
		m.state = StateDocumentsExtracted
		extractGrams(store, results, vectors, m.opts.MaxGrams)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("distinct_grams", store.Len()))
		return nil
	})
	if err != nil {
		return err
	}
	m.state = StateGramsCounted

	vocab, err := buildVocabulary(store, m.opts.MinFrequency, m.opts.MaxVocabulary)
	if err != nil {
		return fmt.Errorf("query %q: %w", query, err)
	}
	span.SetAttributes(attribute.Int("vocabulary_size", vocab.Size()))

	switch m.opts.Scorer {
	case ScorerLanguageModel:
		lm := &lmScorer{
			stats:     m.sources.Stats,
			factory:   m.sources.Smoothing,
			smoothing: m.opts.Smoothing,
		}
		err = phase(ctx, "language_model", func(ctx context.Context) error {
			return lm.score(ctx, store, vocab, results)
		})
		if err != nil {
			return fmt.Errorf("query %q: language model scoring: %w", query, err)
		}
	default:
		if err := m.walk(ctx, query, store, vocab, len(results)); err != nil {
			return err
		}
	}
	m.state = StateScored

	grams := store.grams()
	sort.SliceStable(grams, func(i, j int) bool {
		return weightGreater(grams[i], grams[j])
	})
	m.state = StateSorted

	m.grams = grams
	m.results = results
	m.vocabSize = vocab.Size()
	m.logger.Debug("expansion model built",
		"query", query,
		"results", len(results),
		"grams", len(grams),
		"vocabulary", vocab.Size(),
		"saturated", m.saturated,
	)
	return nil
}

// phase runs fn inside a child span named after the pipeline stage.
func phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "expansion."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		return err
	}
	return nil
}

func (m *Model) fetchVectors(ctx context.Context, query string, results []Result) ([]DocumentVector, error) {
	if len(results) == 0 {
		return nil, nil
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.DocumentID
	}
	vectors, err := m.sources.Vectors.DocumentVectors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("query %q: fetching document vectors: %w", query, err)
	}
	if len(vectors) != len(ids) {
		return nil, fmt.Errorf("query %q: vector provider returned %d vectors for %d documents",
			query, len(vectors), len(ids))
	}
	return vectors, nil
}

func (m *Model) walk(ctx context.Context, query string, store *gramStore, vocab *vocabulary, numDocs int) error {
	var matrix *Matrix
	err := phase(ctx, "cooccurrence", func(ctx context.Context) error {
		var err error
		matrix, err = buildCooccurrence(ctx, store, vocab, numDocs, m.opts.Workers)
		return err
	})
	if err != nil {
		return fmt.Errorf("query %q: %w", query, err)
	}
	m.state = StateGraphBuilt

	seeds := QueryGrams(query, m.opts.MaxGrams)
	scores, matched := seedWeights(store, vocab, seeds)
	if matched == 0 && vocab.Size() > 0 {
		m.logger.Warn("no query gram found in feedback documents",
			"query", query,
			"seeds", len(seeds),
		)
	}

	err = phase(ctx, "random_walk", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("seeds_matched", matched),
			attribute.Int("iterations", m.opts.Iterations),
		)
		return RandomWalk(ctx, matrix, scores, WalkOptions{Lambda: m.opts.Lambda, Iterations: m.opts.Iterations})
	})
	if err != nil {
		return fmt.Errorf("query %q: %w", query, err)
	}
	m.saturated = saturate(scores)
	if m.saturated > 0 {
		m.logger.Debug("random walk saturated gram weights",
			"query", query,
			"saturated", m.saturated,
			"vocabulary", vocab.Size(),
		)
	}
	for id, s := range scores {
		store.record(vocab.record(id)).gram.Weight = s
	}
	return nil
}
