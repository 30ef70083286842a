package shard

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, shards int) *Router {
	t.Helper()
	r, err := NewRouter(config.IndexerConfig{
		DataDir:         t.TempDir(),
		SegmentMaxSize:  1 << 30,
		InMemoryVectors: true,
	}, shards)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRouterAssignIsStable(t *testing.T) {
	r := newTestRouter(t, 3)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("doc-%d", i)
		shardID, engine := r.Assign(id)
		again, _ := r.Assign(id)
		assert.Equal(t, shardID, again)
		assert.GreaterOrEqual(t, shardID, 0)
		assert.Less(t, shardID, 3)

		routed, err := r.Route(shardID)
		require.NoError(t, err)
		assert.Same(t, routed, engine)
	}
}

func TestRouterLocate(t *testing.T) {
	r := newTestRouter(t, 2)
	_, engine := r.Assign("a")
	require.NoError(t, engine.IndexDocument("a", "graph", "walk"))

	found, ok := r.Locate("a")
	require.True(t, ok)
	assert.Same(t, engine, found)

	// A document stored on the other shard is still found.
	other := r.Engines()[1-r.ShardFor("b")]
	require.NoError(t, other.IndexDocument("b", "", "query"))
	found, ok = r.Locate("b")
	require.True(t, ok)
	assert.Same(t, other, found)

	_, ok = r.Locate("missing")
	assert.False(t, ok)
	assert.Equal(t, int64(2), r.TotalDocs())
}

func TestRouterRejectsBadShardCount(t *testing.T) {
	_, err := NewRouter(config.IndexerConfig{DataDir: t.TempDir()}, 0)
	assert.Error(t, err)

	r := newTestRouter(t, 1)
	_, err = r.Route(4)
	assert.Error(t, err)
	assert.Len(t, r.Engines(), 1)
}
