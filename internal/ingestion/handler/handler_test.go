package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	got *ingestion.IngestRequest
	err error
}

func (s *stubPublisher) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &ingestion.IngestResponse{DocumentID: "d1", Status: ingestion.StatusIndexed}, nil
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body)))
	return rec
}

func TestIngestAccepted(t *testing.T) {
	pub := &stubPublisher{}
	rec := post(New(pub), `{"title":"Graphs","body":" random walks "}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ingestion.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "d1", resp.DocumentID)
	assert.Equal(t, "random walks", pub.got.Body)
}

func TestIngestRejected(t *testing.T) {
	rec := post(New(&stubPublisher{}), `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(New(&stubPublisher{}), `{"title":"t"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"body"`)

	rec = post(New(&stubPublisher{err: apperrors.ErrShardUnavailable}), `{"body":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
