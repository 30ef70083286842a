package analytics

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Handler serves the in-process expansion statistics.
type Handler struct {
	aggregator *Aggregator
	normalize  func(string) string
	logger     *slog.Logger
}

// NewHandler builds the stats handler. normalize maps a raw query to the
// key expansions were recorded under; nil keeps the query as given.
func NewHandler(aggregator *Aggregator, normalize func(string) string) *Handler {
	if normalize == nil {
		normalize = strings.TrimSpace
	}
	return &Handler{
		aggregator: aggregator,
		normalize:  normalize,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/stats/query", h.Query)
}

// Stats answers GET /api/v1/stats?top=N.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := DefaultTopQueries
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxTopQueries {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "top must be an integer between 1 and " + strconv.Itoa(MaxTopQueries),
			})
			return
		}
		top = n
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.StatsTop(top))
}

// Query answers GET /api/v1/stats/query?q=... with the counters recorded
// for the normalized form of q.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("q")
	if strings.TrimSpace(raw) == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
		return
	}
	normalized := h.normalize(raw)
	stats, ok := h.aggregator.Query(normalized)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no expansions recorded for " + strconv.Quote(normalized)})
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		h.logger.Error("failed to encode analytics response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
