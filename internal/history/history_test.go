package history

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/expansion"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rowValues []any

func (r rowValues) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r[i].(string)
		case *int:
			*p = r[i].(int)
		case *int64:
			*p = r[i].(int64)
		case *[]byte:
			*p = r[i].([]byte)
		case *time.Time:
			*p = r[i].(time.Time)
		}
	}
	return nil
}

func TestEncodeRunUsesEmptyArrays(t *testing.T) {
	grams, results, err := encodeRun(Run{ID: "r"})
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(grams))
	assert.JSONEq(t, "[]", string(results))
}

func TestScanRun(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := rowValues{
		"r1", "Random walks", "random walk", "randomwalk", 2, 10, 3,
		[]byte(`[{"terms":["random","walk"],"weight":0.5}]`),
		[]byte(`[{"doc_id":"d1","score":1,"begin":0,"end":7}]`),
		int64(12), created,
	}
	run, err := scanRun(row)
	require.NoError(t, err)
	assert.Equal(t, "random walk", run.NormalizedQuery)
	assert.Equal(t, []expansion.Gram{{Terms: []string{"random", "walk"}, Weight: 0.5}}, run.Grams)
	assert.Equal(t, 7, run.Results[0].End)
	assert.Equal(t, created, run.CreatedAt)

	row[7] = []byte(`{`)
	_, err = scanRun(row)
	assert.Error(t, err)
}

// TestStorePostgres runs against a real database when QX_TEST_POSTGRES_DSN
// is set.
func TestStorePostgres(t *testing.T) {
	dsn := os.Getenv("QX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QX_TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	s := NewStore(db)
	require.NoError(t, s.Migrate(ctx))

	run := Run{
		ID:              uuid.NewString(),
		Query:           "graph",
		NormalizedQuery: "graph",
		Scorer:          "randomwalk",
		MaxGrams:        2,
		FeedbackDocs:    10,
		Vocabulary:      1,
		Grams:           []expansion.Gram{{Terms: []string{"graph"}, Weight: 1}},
		DurationMs:      3,
	}
	require.NoError(t, s.Record(ctx, run))
	require.NoError(t, s.Record(ctx, run))

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Grams, got.Grams)
	assert.Empty(t, got.Results)

	recent, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, recent)

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, apperrors.ErrRunNotFound)

	require.NoError(t, s.SaveSnapshot(ctx, analytics.AggregatedStats{TotalExpansions: 4}))
	snap, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.TotalExpansions)
}
