package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/metrics"
)

func newTestIndexer(t *testing.T) (*Indexer, *shard.Router, *metrics.Metrics) {
	t.Helper()
	router, err := shard.NewRouter(config.IndexerConfig{
		DataDir:         t.TempDir(),
		SegmentMaxSize:  1 << 30,
		InMemoryVectors: true,
	}, 2)
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })
	m := metrics.New(prometheus.NewRegistry())
	return NewIndexer(router, m), router, m
}

func TestIndex(t *testing.T) {
	ix, router, m := newTestIndexer(t)
	shardID, err := ix.Index(context.Background(), ingestion.IngestEvent{
		DocumentID: "d1",
		Title:      "Graph",
		Body:       "random walk",
		IngestedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, router.ShardFor("d1"), shardID)

	engine, ok := router.Locate("d1")
	require.True(t, ok)
	assert.Equal(t, 3, engine.GetDocLength("d1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsIndexedTotal))
}

func TestHandleMessage(t *testing.T) {
	ix, router, _ := newTestIndexer(t)
	handle := ix.HandleMessage()
	ctx := context.Background()

	value, err := json.Marshal(ingestion.IngestEvent{DocumentID: "d2", Body: "query expansion"})
	require.NoError(t, err)
	require.NoError(t, handle(ctx, kafka.Message{Key: []byte("d2"), Value: value, Type: ingestion.EventTypeIngest}))
	assert.Equal(t, int64(1), router.TotalDocs())

	untyped, err := json.Marshal(ingestion.IngestEvent{DocumentID: "d3", Body: "graph walk"})
	require.NoError(t, err)
	require.NoError(t, handle(ctx, kafka.Message{Key: []byte("d3"), Value: untyped}))
	assert.Equal(t, int64(2), router.TotalDocs())

	// Poison and foreign messages are skipped rather than retried.
	assert.NoError(t, handle(ctx, kafka.Message{Key: []byte("bad"), Value: []byte("{not json")}))
	assert.NoError(t, handle(ctx, kafka.Message{Value: []byte(`{"body":"no id"}`)}))
	assert.NoError(t, handle(ctx, kafka.Message{Value: value, Type: "expansion"}))
	assert.Equal(t, int64(2), router.TotalDocs())
}
