// Package history keeps expansion runs and analytics snapshots in
// PostgreSQL.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/expansion"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS expansion_runs (
    id               UUID PRIMARY KEY,
    query            TEXT NOT NULL,
    normalized_query TEXT NOT NULL,
    scorer           TEXT NOT NULL,
    max_grams        INT NOT NULL,
    feedback_docs    INT NOT NULL,
    vocabulary       INT NOT NULL,
    grams            JSONB NOT NULL,
    results          JSONB NOT NULL,
    duration_ms      BIGINT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS expansion_runs_created_at ON expansion_runs (created_at DESC);
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Run is one persisted expansion.
type Run struct {
	ID              string             `json:"run_id"`
	Query           string             `json:"query"`
	NormalizedQuery string             `json:"normalized_query"`
	Scorer          string             `json:"scorer"`
	MaxGrams        int                `json:"max_grams"`
	FeedbackDocs    int                `json:"feedback_docs"`
	Vocabulary      int                `json:"vocabulary"`
	Grams           []expansion.Gram   `json:"grams"`
	Results         []expansion.Result `json:"results"`
	DurationMs      int64              `json:"duration_ms"`
	CreatedAt       time.Time          `json:"created_at"`
}

// DB is the part of *sql.DB the store uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db     DB
	logger *slog.Logger
}

func NewStore(db DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "history-store"),
	}
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating history schema: %w", err)
	}
	return nil
}

// Record inserts run. Recording the same ID twice keeps the first row.
func (s *Store) Record(ctx context.Context, run Run) error {
	grams, results, err := encodeRun(run)
	if err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO expansion_runs
		(id, query, normalized_query, scorer, max_grams, feedback_docs, vocabulary, grams, results, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Query, run.NormalizedQuery, run.Scorer, run.MaxGrams, run.FeedbackDocs,
		run.Vocabulary, grams, results, run.DurationMs, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	s.logger.Debug("expansion run recorded", "run_id", run.ID, "grams", len(run.Grams))
	return nil
}

const selectRun = `SELECT id, query, normalized_query, scorer, max_grams, feedback_docs,
	vocabulary, grams, results, duration_ms, created_at FROM expansion_runs`

// Get loads a run by ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return run, nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable run", "error", err)
			continue
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var grams, results []byte
	if err := row.Scan(&run.ID, &run.Query, &run.NormalizedQuery, &run.Scorer, &run.MaxGrams,
		&run.FeedbackDocs, &run.Vocabulary, &grams, &results, &run.DurationMs, &run.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeRun(&run, grams, results); err != nil {
		return nil, err
	}
	return &run, nil
}

func encodeRun(run Run) (grams, results []byte, err error) {
	if run.Grams == nil {
		run.Grams = []expansion.Gram{}
	}
	if run.Results == nil {
		run.Results = []expansion.Result{}
	}
	if grams, err = json.Marshal(run.Grams); err != nil {
		return nil, nil, fmt.Errorf("encoding grams: %w", err)
	}
	if results, err = json.Marshal(run.Results); err != nil {
		return nil, nil, fmt.Errorf("encoding results: %w", err)
	}
	return grams, results, nil
}

func decodeRun(run *Run, grams, results []byte) error {
	if err := json.Unmarshal(grams, &run.Grams); err != nil {
		return fmt.Errorf("decoding grams of run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal(results, &run.Results); err != nil {
		return fmt.Errorf("decoding results of run %s: %w", run.ID, err)
	}
	return nil
}
