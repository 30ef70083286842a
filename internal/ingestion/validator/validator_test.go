package validator

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    ingestion.IngestRequest
		fields []string
	}{
		{"valid", ingestion.IngestRequest{Title: "t", Body: "graph walk"}, nil},
		{"valid with id", ingestion.IngestRequest{ID: "doc-1", Body: "graph walk"}, nil},
		{"blank body", ingestion.IngestRequest{Title: "t", Body: "   "}, []string{"body"}},
		{"long title", ingestion.IngestRequest{Title: strings.Repeat("x", 1025), Body: "b"}, []string{"title"}},
		{"bad id", ingestion.IngestRequest{ID: "d\x01c", Body: "b"}, []string{"id"}},
		{"several", ingestion.IngestRequest{ID: strings.Repeat("i", 256), Title: strings.Repeat("x", 1025)}, []string{"id", "title", "body"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := ValidateIngestRequest(&req)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestValidateTrims(t *testing.T) {
	req := ingestion.IngestRequest{ID: " a ", Title: " T ", Body: " b "}
	require.NoError(t, ValidateIngestRequest(&req))
	assert.Equal(t, ingestion.IngestRequest{ID: "a", Title: "T", Body: "b"}, req)
}
