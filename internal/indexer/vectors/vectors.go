// Package vectors stores the forward index: for every document, the ordered
// word positions as indices into a per-document stem table. Index 0 of the
// stem table is reserved and marks a word that was not indexed.
package vectors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Get for unknown documents.
var ErrNotFound = errors.New("document vector not found")

// Vector is the forward-index entry of one document.
type Vector struct {
	Positions []int    `json:"p"`
	Stems     []string `json:"s"`
}

// Build turns analysed words, with "" for skipped words, into a Vector.
func Build(words []string) Vector {
	v := Vector{
		Positions: make([]int, len(words)),
		Stems:     []string{""},
	}
	ids := make(map[string]int)
	for i, w := range words {
		if w == "" {
			continue
		}
		id, ok := ids[w]
		if !ok {
			id = len(v.Stems)
			ids[w] = id
			v.Stems = append(v.Stems, w)
		}
		v.Positions[i] = id
	}
	return v
}

// Length returns the number of word positions.
func (v Vector) Length() int {
	return len(v.Positions)
}

// Terms returns the number of indexed positions.
func (v Vector) Terms() int {
	n := 0
	for _, p := range v.Positions {
		if p > 0 {
			n++
		}
	}
	return n
}

// Config controls where the store keeps its data.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// Store persists vectors in BadgerDB keyed by document ID.
type Store struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates a store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("vector store path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating vector store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores v under docID, replacing any previous vector.
func (s *Store) Put(docID string, v Vector) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding vector for %s: %w", docID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(docID), data)
	})
}

// Get returns the vector of docID, or ErrNotFound.
func (s *Store) Get(docID string) (Vector, error) {
	var v Vector
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(docID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Vector{}, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	if err != nil {
		return Vector{}, fmt.Errorf("reading vector for %s: %w", docID, err)
	}
	return v, nil
}

// ForEach calls fn for every stored vector in key order. Iteration stops at
// the first error fn returns.
func (s *Store) ForEach(fn func(docID string, v Vector) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var v Vector
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return fmt.Errorf("decoding vector %s: %w", item.Key(), err)
			}
			if err := fn(string(item.KeyCopy(nil)), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
