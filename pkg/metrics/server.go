package metrics

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var indexPage = template.Must(template.New("index").Parse(`<html><body>
<h1>Query Expansion Metrics</h1>
<p><a href="/metrics">/metrics</a></p>
<ul>{{range .}}<li>{{.}}</li>{{end}}</ul>
</body></html>
`))

// Server exposes a gatherer on its own port, apart from the API listener.
type Server struct {
	http     *http.Server
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewServer serves gatherer on port. The index page lists the expansion
// and cache families the gatherer currently holds.
func NewServer(port int, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		gatherer: gatherer,
		logger:   slog.Default().With("component", "metrics-server"),
	}
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler routes /metrics and the index page.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	mux.HandleFunc("GET /{$}", s.index)
	return mux
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	families, err := s.gatherer.Gather()
	if err != nil {
		s.logger.Warn("gathering metric families for index", "error", err)
	}
	var names []string
	for _, f := range families {
		name := f.GetName()
		if strings.HasPrefix(name, "expansion_") || strings.HasPrefix(name, "expansions_") || strings.HasPrefix(name, "cache_") {
			names = append(names, name)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, names); err != nil {
		s.logger.Error("rendering metrics index", "error", err)
	}
}

// Start listens in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
