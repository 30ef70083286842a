package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type payload struct {
	Query string   `json:"query"`
	Terms []string `json:"terms"`
}

func TestGetOrCompute(t *testing.T) {
	store := newMemStore()
	c := New[*payload](store, "expand:", time.Minute)
	ctx := context.Background()

	calls := 0
	compute := func() (*payload, error) {
		calls++
		return &payload{Query: "graph", Terms: []string{"graph", "walk"}}, nil
	}
	got, hit, err := c.GetOrCompute(ctx, "graph", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "graph", got.Query)

	got, hit, err = c.GetOrCompute(ctx, "graph", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"graph", "walk"}, got.Terms)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	for k, ttl := range store.ttls {
		assert.True(t, strings.HasPrefix(k, "expand:"))
		assert.Equal(t, time.Minute, ttl)
	}
}

func TestGetOrComputeError(t *testing.T) {
	c := New[*payload](newMemStore(), "expand:", time.Minute)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "q", func() (*payload, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), "q")
	assert.False(t, ok)
}

func TestInvalidateKeepsOtherPrefixes(t *testing.T) {
	store := newMemStore()
	expand := New[*payload](store, "expand:", time.Minute)
	search := New[*payload](store, "search:", time.Minute)
	ctx := context.Background()
	expand.Set(ctx, "a", &payload{Query: "a"})
	search.Set(ctx, "a", &payload{Query: "a"})

	require.NoError(t, expand.Invalidate(ctx))
	_, ok := expand.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = search.Get(ctx, "a")
	assert.True(t, ok)
}

func TestSearchKey(t *testing.T) {
	assert.Equal(t, SearchKey("Graph walk", 10), SearchKey("walk graph", 10))
	assert.NotEqual(t, SearchKey("graph walk", 10), SearchKey("graph walk", 5))
	assert.NotEqual(t, SearchKey("graph OR walk", 10), SearchKey("graph walk", 10))
	assert.Equal(t, "AND|graph|NOT:tree", normalizeQuery("graph NOT tree"))
}
