package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (r *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.batches = append(r.batches, events)
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestBatchCollectorFlushesOnSize(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 2, time.Hour)
	bc.Track("expansion", "a", 1)
	assert.Equal(t, 1, bc.BufferLen())
	bc.Track("expansion", "b", 2)
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, bc.BufferLen())
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, kafka.Event{Key: "b", Type: "expansion", Value: 2}, pub.batches[0][1])
}

func TestBatchCollectorFinalFlush(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	bc.Track("search", "a", 1)
	cancel()
	bc.Close()
	assert.Equal(t, 1, pub.count())
}

func TestBatchCollectorRequeuesOnFailure(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	bc := NewBatchCollector(pub, 10, time.Hour)
	for i := 0; i < 5; i++ {
		bc.Track("expansion", "k", i)
	}
	bc.flush(context.Background())
	assert.Equal(t, 5, bc.BufferLen())

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()
	bc.flush(context.Background())
	assert.Equal(t, 0, bc.BufferLen())
	assert.Equal(t, 5, pub.count())
}
