// Package expand serves query expansion requests: it validates them, runs
// the expansion model over the index and caches, records and reports each
// run.
package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/history"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/source"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	tracer   = otel.Tracer("expand.service")
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Request asks for the expansion of Query. Zero values fall back to the
// configured defaults.
type Request struct {
	Query        string `json:"query" validate:"required,max=1024"`
	FeedbackDocs int    `json:"docs" validate:"gte=0,lte=1000"`
	MaxGrams     int    `json:"grams" validate:"gte=0,lte=5"`
	Scorer       string `json:"scorer" validate:"omitempty,oneof=randomwalk languagemodel"`
	Top          int    `json:"top" validate:"gte=0,lte=10000"`
}

type GramScore struct {
	Terms  []string `json:"terms"`
	Text   string   `json:"text"`
	Weight float64  `json:"weight"`
}

type ResultScore struct {
	DocID     string  `json:"doc_id"`
	Posterior float64 `json:"posterior"`
	Begin     int     `json:"begin"`
	End       int     `json:"end"`
}

// Response is the result of one expansion. Saturated counts the grams whose
// walk weight overflowed and was clamped to the largest float64.
type Response struct {
	RunID           string        `json:"run_id"`
	Query           string        `json:"query"`
	NormalizedQuery string        `json:"normalized_query"`
	Scorer          string        `json:"scorer"`
	Vocabulary      int           `json:"vocabulary"`
	TotalGrams      int           `json:"total_grams"`
	Saturated       int           `json:"saturated"`
	Grams           []GramScore   `json:"grams"`
	Results         []ResultScore `json:"results"`
	DurationMs      int64         `json:"duration_ms"`
	Cached          bool          `json:"cached"`
}

// Cache stores responses by key.
type Cache interface {
	GetOrCompute(ctx context.Context, key string, computeFn func() (*Response, error)) (*Response, bool, error)
	Invalidate(ctx context.Context) error
}

// RunStore persists runs.
type RunStore interface {
	Record(ctx context.Context, run history.Run) error
	Get(ctx context.Context, id string) (*history.Run, error)
}

// Tracker receives one event per request.
type Tracker interface {
	TrackExpansion(event analytics.ExpansionEvent)
}

type Option func(*Service)

func WithCache(c Cache) Option              { return func(s *Service) { s.cache = c } }
func WithRuns(r RunStore) Option            { return func(s *Service) { s.runs = r } }
func WithTracker(t Tracker) Option          { return func(s *Service) { s.tracker = t } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

type Service struct {
	sources  expansion.Sources
	defaults config.ExpansionConfig
	cache    Cache
	runs     RunStore
	tracker  Tracker
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

func New(sources expansion.Sources, defaults config.ExpansionConfig, opts ...Option) *Service {
	s := &Service{
		sources:  sources,
		defaults: defaults,
		now:      time.Now,
		logger:   slog.Default().With("component", "expand-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OptionsFromConfig maps the configured defaults onto model options.
func OptionsFromConfig(cfg config.ExpansionConfig) expansion.Options {
	return expansion.Options{
		MaxGrams:      cfg.MaxGrams,
		FeedbackDocs:  cfg.FeedbackDocs,
		MinFrequency:  cfg.MinFrequency,
		MaxVocabulary: cfg.MaxVocabulary,
		Lambda:        cfg.Lambda,
		Iterations:    cfg.Iterations,
		Scorer:        expansion.Scorer(cfg.Scorer),
		Smoothing:     cfg.Smoothing,
		Workers:       cfg.Workers,
	}
}

// Expand runs the model for req, or returns the cached response of an
// identical earlier request.
func (s *Service) Expand(ctx context.Context, req Request) (resp *Response, err error) {
	start := s.now()
	log := logger.FromContext(ctx)
	if err := validate.Struct(req); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%v", err)
	}
	normalized := source.NormalizeQuery(req.Query)
	if normalized == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query has no indexable terms")
	}
	opts, top := s.options(req)

	ctx, span := tracer.Start(ctx, "Service.Expand")
	span.SetAttributes(
		attribute.String("query", normalized),
		attribute.String("scorer", string(opts.Scorer)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "expand failed")
		}
		span.End()
	}()

	compute := func() (*Response, error) {
		return s.run(ctx, req.Query, normalized, opts, top)
	}
	cached := false
	if s.cache != nil {
		resp, cached, err = s.cache.GetOrCompute(ctx, cacheKey(normalized, opts, top), compute)
	} else {
		resp, err = compute()
	}

	elapsed := s.now().Sub(start)
	s.observe(ctx, req, normalized, opts, resp, cached, elapsed, err)
	if err != nil {
		log.Error("expansion failed",
			"query", normalized,
			"scorer", opts.Scorer,
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("cached", cached),
		attribute.String("run_id", resp.RunID),
		attribute.Int("saturated", resp.Saturated),
	)
	if cached {
		hit := *resp
		hit.Cached = true
		resp = &hit
	}
	log.Info("expansion completed",
		"query", normalized,
		"run_id", resp.RunID,
		"vocabulary", resp.Vocabulary,
		"cached", cached,
		"latency_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}

// Run returns a recorded run.
func (s *Service) Run(ctx context.Context, id string) (*history.Run, error) {
	if s.runs == nil {
		return nil, apperrors.New(apperrors.ErrRunNotFound, http.StatusNotFound, "run history is disabled")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid run id %q", id)
	}
	return s.runs.Get(ctx, id)
}

// InvalidateCache drops every cached response.
func (s *Service) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return apperrors.ErrCacheDisabled
	}
	return s.cache.Invalidate(ctx)
}

func (s *Service) options(req Request) (expansion.Options, int) {
	opts := OptionsFromConfig(s.defaults)
	if req.MaxGrams > 0 {
		opts.MaxGrams = req.MaxGrams
	}
	if req.FeedbackDocs > 0 {
		opts.FeedbackDocs = req.FeedbackDocs
	}
	if req.Scorer != "" {
		opts.Scorer = expansion.Scorer(req.Scorer)
	}
	top := s.defaults.TopGrams
	if req.Top > 0 {
		top = req.Top
	}
	return opts, top
}

func (s *Service) run(ctx context.Context, query, normalized string, opts expansion.Options, top int) (*Response, error) {
	start := s.now()
	model, err := expansion.NewModel(s.sources, opts)
	if err != nil {
		return nil, err
	}
	if err := model.Generate(ctx, normalized); err != nil {
		return nil, err
	}

	grams := model.Grams()
	resp := &Response{
		RunID:           uuid.NewString(),
		Query:           query,
		NormalizedQuery: normalized,
		Scorer:          string(opts.Scorer),
		Vocabulary:      model.VocabularySize(),
		TotalGrams:      len(grams),
		Saturated:       model.Saturated(),
	}
	if top > 0 && len(grams) > top {
		grams = grams[:top]
	}
	resp.Grams = make([]GramScore, len(grams))
	for i, g := range grams {
		resp.Grams[i] = GramScore{Terms: g.Terms, Text: g.String(), Weight: g.Weight}
	}
	results := model.Results()
	resp.Results = make([]ResultScore, len(results))
	for i, r := range results {
		resp.Results[i] = ResultScore{DocID: r.DocumentID, Posterior: r.Score, Begin: r.Begin, End: r.End}
	}
	resp.DurationMs = s.now().Sub(start).Milliseconds()

	if s.metrics != nil {
		s.metrics.ExpansionLatency.WithLabelValues(resp.Scorer).Observe(s.now().Sub(start).Seconds())
		s.metrics.VocabularySize.Observe(float64(resp.Vocabulary))
		s.metrics.SaturatedWeights.Add(float64(resp.Saturated))
	}
	if s.runs != nil {
		run := history.Run{
			ID:              resp.RunID,
			Query:           query,
			NormalizedQuery: normalized,
			Scorer:          resp.Scorer,
			MaxGrams:        opts.MaxGrams,
			FeedbackDocs:    opts.FeedbackDocs,
			Vocabulary:      resp.Vocabulary,
			Grams:           grams,
			Results:         results,
			DurationMs:      resp.DurationMs,
			CreatedAt:       start.UTC(),
		}
		if err := s.runs.Record(ctx, run); err != nil {
			s.logger.Error("recording run failed", "run_id", resp.RunID, "error", err)
		}
	}
	return resp, nil
}

func (s *Service) observe(ctx context.Context, req Request, normalized string, opts expansion.Options, resp *Response, cached bool, elapsed time.Duration, err error) {
	scorer := string(opts.Scorer)
	if s.metrics != nil {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case cached:
			outcome = "cached"
		}
		s.metrics.ExpansionsTotal.WithLabelValues(scorer, outcome).Inc()
		if s.cache != nil && err == nil {
			if cached {
				s.metrics.CacheHitsTotal.Inc()
			} else {
				s.metrics.CacheMissesTotal.Inc()
			}
		}
	}
	if s.tracker == nil {
		return
	}
	event := analytics.ExpansionEvent{
		Type:            analytics.EventExpansion,
		Query:           req.Query,
		NormalizedQuery: normalized,
		Scorer:          scorer,
		FeedbackDocs:    opts.FeedbackDocs,
		LatencyMs:       elapsed.Milliseconds(),
		CacheHit:        cached,
		Timestamp:       s.now().UTC(),
	}
	if id, ok := logger.RequestID(ctx); ok {
		event.RequestID = id
	}
	if err != nil {
		event.Error = errorKind(err)
	} else {
		event.RunID = resp.RunID
		event.Vocabulary = resp.Vocabulary
		if resp.Vocabulary == 0 {
			event.Type = analytics.EventEmptyExpansion
		}
		for i, g := range resp.Grams {
			if i == 10 {
				break
			}
			event.TopGrams = append(event.TopGrams, g.Text)
		}
	}
	s.tracker.TrackExpansion(event)
}

func errorKind(err error) string {
	var qe *expansion.QueryError
	switch {
	case errors.As(err, &qe):
		return apperrors.ErrRetrieval.Error()
	case errors.Is(err, apperrors.ErrVocabularyTooLarge):
		return apperrors.ErrVocabularyTooLarge.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return err.Error()
	}
}

func cacheKey(normalized string, opts expansion.Options, top int) string {
	return fmt.Sprintf("%s|scorer=%s|smoothing=%s|grams=%d|docs=%d|minfreq=%d|maxvocab=%d|lambda=%g|iter=%d|top=%d",
		normalized, opts.Scorer, opts.Smoothing, opts.MaxGrams, opts.FeedbackDocs,
		opts.MinFrequency, opts.MaxVocabulary, opts.Lambda, opts.Iterations, top)
}
