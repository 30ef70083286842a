// Package indexer implements a positional inverted index with a forward
// index beside it. Postings collect in memory and are flushed to immutable
// segment files; document vectors go straight to the vector store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/vectors"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
)

type Engine struct {
	memIndex    *index.MemoryIndex
	writer      *segment.Writer
	readers     []*segment.Reader
	readerMu    sync.RWMutex
	vectors     *vectors.Store
	cfg         config.IndexerConfig
	logger      *slog.Logger
	docLengths  map[string]int
	statsMu     sync.RWMutex
	totalDocs   int64
	totalTokens int64
}

func NewEngine(cfg config.IndexerConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	logger := slog.Default().With("component", "indexer", "data_dir", cfg.DataDir)
	store, err := vectors.Open(vectors.Config{
		Path:     filepath.Join(cfg.DataDir, "vectors"),
		InMemory: cfg.InMemoryVectors,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	e := &Engine{
		memIndex:   index.NewMemoryIndex(),
		writer:     segment.NewWriter(cfg.DataDir),
		vectors:    store,
		cfg:        cfg,
		logger:     logger,
		docLengths: make(map[string]int),
	}
	if err := e.loadExistingSegments(); err != nil {
		store.Close()
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	if err := e.loadStats(); err != nil {
		store.Close()
		return nil, fmt.Errorf("loading document statistics: %w", err)
	}
	return e, nil
}

// IndexDocument analyses title and body, stores the document vector and
// adds the postings to the memory index. Indexing an existing ID replaces
// the document.
func (e *Engine) IndexDocument(docID string, title string, body string) error {
	words := tokenizer.Analyze(title + " " + body)
	vec := vectors.Build(words)
	tokens := make([]tokenizer.Token, 0, len(words))
	for pos, term := range words {
		if term != "" {
			tokens = append(tokens, tokenizer.Token{Term: term, Position: pos})
		}
	}

	if err := e.vectors.Put(docID, vec); err != nil {
		return fmt.Errorf("storing document vector: %w", err)
	}

	e.statsMu.Lock()
	if old, exists := e.docLengths[docID]; exists {
		e.totalTokens -= int64(old)
	} else {
		e.totalDocs++
	}
	e.docLengths[docID] = len(tokens)
	e.totalTokens += int64(len(tokens))
	e.statsMu.Unlock()

	e.memIndex.AddDocument(docID, tokens)
	e.logger.Debug("document indexed in memory",
		"doc_id", docID,
		"token_count", len(tokens),
		"mem_size", e.memIndex.Size(),
	)
	if e.memIndex.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", e.memIndex.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

func (e *Engine) Flush() error {
	snapshot := e.memIndex.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	segmentName, err := e.writer.Write(snapshot)
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}

	segPath := filepath.Join(e.cfg.DataDir, segmentName)
	reader, err := segment.OpenReader(segPath)
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	active := len(e.readers)
	e.memIndex.Reset()
	e.readerMu.Unlock()
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", active,
	)
	return nil
}

// Search analyses a raw word and returns the postings of its stem.
func (e *Engine) Search(term string) (index.PostingList, error) {
	tokens := tokenizer.Tokenize(term)
	if len(tokens) == 0 {
		return nil, nil
	}
	return e.Postings(tokens[0].Term)
}

// Postings returns the postings of an already analysed stem, ordered by
// document ID. When a document was re-indexed, the newest posting wins.
func (e *Engine) Postings(stem string) (index.PostingList, error) {
	e.readerMu.RLock()
	allPostings := e.memIndex.Postings(stem)
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	e.readerMu.RUnlock()

	for i := len(readers) - 1; i >= 0; i-- {
		postings, err := readers[i].Postings(stem)
		if err != nil {
			e.logger.Error("segment search failed",
				"error", err,
			)
			continue
		}
		allPostings = append(allPostings, postings...)
	}
	return deduplicatePostings(allPostings), nil
}

// DocumentVector returns the forward-index entry of docID.
func (e *Engine) DocumentVector(docID string) (vectors.Vector, error) {
	v, err := e.vectors.Get(docID)
	if errors.Is(err, vectors.ErrNotFound) {
		return vectors.Vector{}, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, docID)
	}
	return v, err
}

// HasDocument reports whether docID has been indexed.
func (e *Engine) HasDocument(docID string) bool {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	_, ok := e.docLengths[docID]
	return ok
}

// StemCount returns the number of occurrences of stem in the index.
func (e *Engine) StemCount(stem string) (int64, error) {
	postings, err := e.Postings(stem)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, p := range postings {
		n += int64(p.Frequency)
	}
	return n, nil
}

// PhraseCount returns the number of places where stems occur in order at
// consecutive word positions.
func (e *Engine) PhraseCount(stems []string) (int64, error) {
	switch len(stems) {
	case 0:
		return 0, nil
	case 1:
		return e.StemCount(stems[0])
	}
	lists := make([]map[string][]int, len(stems))
	var first index.PostingList
	for i, stem := range stems {
		postings, err := e.Postings(stem)
		if err != nil {
			return 0, err
		}
		if len(postings) == 0 {
			return 0, nil
		}
		if i == 0 {
			first = postings
			continue
		}
		byDoc := make(map[string][]int, len(postings))
		for _, p := range postings {
			byDoc[p.DocID] = p.Positions
		}
		lists[i] = byDoc
	}

	var count int64
	for _, p := range first {
		for _, start := range p.Positions {
			matched := true
			for k := 1; k < len(stems); k++ {
				positions := lists[k][p.DocID]
				j := sort.SearchInts(positions, start+k)
				if j == len(positions) || positions[j] != start+k {
					matched = false
					break
				}
			}
			if matched {
				count++
			}
		}
	}
	return count, nil
}

func (e *Engine) GetDocLength(docID string) int {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.docLengths[docID]
}

func (e *Engine) GetAvgDocLength() float64 {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	if e.totalDocs == 0 {
		return 0
	}
	return float64(e.totalTokens) / float64(e.totalDocs)
}

func (e *Engine) GetTotalDocs() int64 {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.totalDocs
}

// TotalTokens returns the number of indexed tokens across all documents.
func (e *Engine) TotalTokens() int64 {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.totalTokens
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.memIndex.DocCount() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	return e.vectors.Close()
}

func (e *Engine) loadExistingSegments() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return nil
}

// loadStats rebuilds document lengths and collection totals from the
// vector store.
func (e *Engine) loadStats() error {
	return e.vectors.ForEach(func(docID string, v vectors.Vector) error {
		n := v.Terms()
		e.docLengths[docID] = n
		e.totalDocs++
		e.totalTokens += int64(n)
		return nil
	})
}

// deduplicatePostings keeps the first posting seen for each document, so
// callers list newer sources first.
func deduplicatePostings(postings index.PostingList) index.PostingList {
	if len(postings) <= 1 {
		return postings
	}
	seen := make(map[string]struct{}, len(postings))
	result := make(index.PostingList, 0, len(postings))
	for _, p := range postings {
		if _, exists := seen[p.DocID]; exists {
			continue
		}
		seen[p.DocID] = struct{}{}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}
