package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesExpansionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ExpansionsTotal.WithLabelValues("walk", "ok").Inc()
	m.SaturatedWeights.Add(3)

	srv := httptest.NewServer(NewServer(0, reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `expansions_total{outcome="ok",scorer="walk"} 1`)
	assert.Contains(t, string(body), "expansion_saturated_weights_total 3")

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "<li>expansion_saturated_weights_total</li>")
	assert.NotContains(t, string(body), "http_requests_total")

	resp, err = http.Get(srv.URL + "/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
