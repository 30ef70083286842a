// Package shard provides hash-based shard routing for index engines. Each
// shard owns an independent indexer.Engine instance backed by its own data
// directory, and the Router assigns documents to shards by hashing their ID.
package shard

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
)

// Router maps shard IDs to dedicated indexer.Engine instances.
type Router struct {
	engines   map[int]*indexer.Engine
	mu        sync.RWMutex
	baseCfg   config.IndexerConfig
	numShards int
	logger    *slog.Logger
}

// NewRouter creates numShards engines, each in its own sub-directory under
// baseCfg.DataDir.
func NewRouter(baseCfg config.IndexerConfig, numShards int) (*Router, error) {
	if numShards <= 0 {
		return nil, fmt.Errorf("number of shards must be positive, got %d", numShards)
	}
	r := &Router{
		engines:   make(map[int]*indexer.Engine, numShards),
		baseCfg:   baseCfg,
		numShards: numShards,
		logger:    slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < numShards; i++ {
		shardCfg := baseCfg
		shardCfg.DataDir = filepath.Join(baseCfg.DataDir, fmt.Sprintf("shard-%d", i))
		engine, err := indexer.NewEngine(shardCfg)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines[i] = engine
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	r.logger.Info("shard router ready", "num_shards", numShards)
	return r, nil
}

// Route returns the Engine responsible for the given shard ID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[shardID]
	if !ok {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, r.numShards-1)
	}
	return engine, nil
}

// ShardFor returns the shard ID a document ID hashes to.
func (r *Router) ShardFor(docID string) int {
	return int(xxhash.Sum64String(docID) % uint64(r.numShards))
}

// Assign returns the shard ID and Engine that own docID for writes.
func (r *Router) Assign(docID string) (int, *indexer.Engine) {
	id := r.ShardFor(docID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id, r.engines[id]
}

// Locate returns the Engine holding docID. The hashed shard is checked
// first; the others are scanned so documents indexed under a different
// shard count are still found.
func (r *Router) Locate(docID string) (*indexer.Engine, bool) {
	id, engine := r.Assign(docID)
	if engine.HasDocument(docID) {
		return engine, true
	}
	for i, e := range r.Engines() {
		if i != id && e.HasDocument(docID) {
			return e, true
		}
	}
	return nil, false
}

// Engines returns the shard engines ordered by shard ID.
func (r *Router) Engines() []*indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*indexer.Engine, r.numShards)
	for id, engine := range r.engines {
		result[id] = engine
	}
	return result
}

// TotalDocs returns the number of documents across all shards.
func (r *Router) TotalDocs() int64 {
	var n int64
	for _, e := range r.Engines() {
		n += e.GetTotalDocs()
	}
	return n
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return r.numShards
}

// FlushAll flushes every shard engine to disk.
func (r *Router) FlushAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Flush(); err != nil {
			r.logger.Error("flush failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close flushes and closes every shard engine.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

// closeAll closes every shard engine, collecting the first error encountered.
func (r *Router) closeAll() error {
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
