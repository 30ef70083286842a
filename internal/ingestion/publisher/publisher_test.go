package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(_ context.Context, e kafka.Event) error {
	f.events = append(f.events, e)
	return f.err
}

type fakeIndexer struct {
	events []ingestion.IngestEvent
}

func (f *fakeIndexer) Index(_ context.Context, e ingestion.IngestEvent) (int, error) {
	f.events = append(f.events, e)
	return 1, nil
}

func TestIngestPublishesToKafka(t *testing.T) {
	prod := &fakeProducer{}
	ix := &fakeIndexer{}
	p := New(prod, ix)

	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{ID: "d1", Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusPending, resp.Status)
	assert.Equal(t, "d1", resp.DocumentID)
	require.Len(t, prod.events, 1)
	assert.Equal(t, "d1", prod.events[0].Key)
	assert.Equal(t, ingestion.EventTypeIngest, prod.events[0].Type)
	event := prod.events[0].Value.(ingestion.IngestEvent)
	assert.Equal(t, "b", event.Body)
	assert.Empty(t, ix.events)
}

func TestIngestIndexesDirectly(t *testing.T) {
	ix := &fakeIndexer{}
	p := New(nil, ix)

	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{Body: "graph"})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusIndexed, resp.Status)
	assert.Equal(t, 1, resp.ShardID)
	assert.NotEmpty(t, resp.DocumentID)
	require.Len(t, ix.events, 1)
	assert.Equal(t, resp.DocumentID, ix.events[0].DocumentID)
}

func TestIngestPublishFailure(t *testing.T) {
	boom := errors.New("broker down")
	p := New(&fakeProducer{err: boom}, nil)
	_, err := p.Ingest(context.Background(), &ingestion.IngestRequest{ID: "d1", Body: "b"})
	assert.ErrorIs(t, err, boom)

	_, err = New(nil, nil).Ingest(context.Background(), &ingestion.IngestRequest{Body: "b"})
	assert.Error(t, err)
}
