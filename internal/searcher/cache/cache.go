// Package cache stores JSON-encoded responses in Redis under hashed keys and
// collapses concurrent computations of the same key with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/redis"
	"golang.org/x/sync/singleflight"
)

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache[T any] struct {
	client Store
	prefix string
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New returns a cache whose keys all start with prefix.
func New[T any](client Store, prefix string, ttl time.Duration) *QueryCache[T] {
	return &QueryCache[T]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache", "prefix", prefix),
	}
}

func (c *QueryCache[T]) Get(ctx context.Context, key string) (T, bool) {
	var result T
	hashed := c.buildKey(key)
	data, err := c.client.Get(ctx, hashed)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", hashed, "error", err)
		}
		c.misses.Add(1)
		return result, false
	}
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", hashed, "error", err)
		c.misses.Add(1)
		return result, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", hashed)
	return result, true
}

func (c *QueryCache[T]) Set(ctx context.Context, key string, value T) {
	hashed := c.buildKey(key)
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", hashed, "error", err)
		return
	}
	if err := c.client.Set(ctx, hashed, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", hashed, "error", err)
	}
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent callers with the same key share one computation.
// The boolean reports a cache hit.
func (c *QueryCache[T]) GetOrCompute(ctx context.Context, key string, computeFn func() (T, error)) (T, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(c.buildKey(key), func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

func (c *QueryCache[T]) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, c.prefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache[T]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache[T]) buildKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s%x", c.prefix, hash[:16])
}

// SearchKey builds the cache key of a search query. Word order and case do
// not matter.
func SearchKey(query string, limit int) string {
	return fmt.Sprintf("%s:limit=%d", normalizeQuery(query), limit)
}

func normalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0)
	excludes := make([]string, 0)
	queryType := "AND"
	excludeNext := false
	for _, w := range words {
		upper := strings.ToUpper(w)
		switch upper {
		case "AND":
			queryType = "AND"
		case "OR":
			queryType = "OR"
		case "NOT":
			excludeNext = true
		default:
			if excludeNext {
				excludes = append(excludes, w)
				excludeNext = false
			} else {
				terms = append(terms, w)
			}
		}
	}

	sort.Strings(terms)
	sort.Strings(excludes)
	parts := []string{queryType, strings.Join(terms, ",")}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, ","))
	}
	return strings.Join(parts, "|")
}
