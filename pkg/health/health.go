// Package health reports whether the expansion service can answer queries.
// Dependencies register checks; the index check decides readiness, while
// optional stores such as the cache and the run history only degrade it.
package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status represents the health state of a component or the service overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// DefaultReadyTimeout bounds one readiness evaluation.
const DefaultReadyTimeout = 5 * time.Second

// Check reports the health of one dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency string         `json:"latency,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registered struct {
	check    Check
	optional bool
}

// Checker runs registered checks concurrently.
type Checker struct {
	checks  map[string]registered
	mu      sync.RWMutex
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates an empty Checker. A non-positive timeout falls back to
// DefaultReadyTimeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	return &Checker{
		checks:  make(map[string]registered),
		timeout: timeout,
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds a check whose Down status takes the service down.
func (c *Checker) Register(name string, check Check) {
	c.register(name, check, false)
}

// RegisterOptional adds a check for a dependency the service can run
// without; a Down result is reported as Degraded.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.register(name, check, true)
}

func (c *Checker) register(name string, check Check, optional bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registered{check: check, optional: optional}
}

// Run executes all registered checks concurrently. The overall status is
// the worst status among all components.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]registered, len(c.checks))
	for name, r := range c.checks {
		checks[name] = r
	}
	c.mu.RUnlock()
	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, r := range checks {
		wg.Go(func() {
			start := time.Now()
			result := r.check(ctx)
			result.Latency = time.Since(start).Round(time.Millisecond).String()
			if r.optional && result.Status == StatusDown {
				result.Status = StatusDegraded
			}
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		})
	}
	wg.Wait()

	for name, comp := range report.Components {
		switch comp.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
		if comp.Status != StatusUp {
			c.logger.Debug("component unhealthy", "name", name, "status", comp.Status, "message", comp.Message)
		}
	}
	return report
}

// LiveHandler answers liveness checks; it never consults dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness checks. Only a Down report fails
// readiness; a degraded service still expands queries.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.writeJSON(w, status, report)
	}
}

func (c *Checker) writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		c.logger.Error("failed to encode health response", "error", err)
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"status":"down"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		c.logger.Error("failed to write health response", "error", err)
	}
}

// IndexStats describes the searchable collection expansions draw from.
type IndexStats struct {
	Shards    int
	Documents int64
}

// IndexCheck reports the shard layout and the configured vocabulary limit.
// An index with no shards is Down; an index without documents is Degraded
// because every expansion over it fails with an empty collection.
func IndexCheck(stats func() IndexStats, maxVocabulary int) Check {
	return func(ctx context.Context) ComponentHealth {
		s := stats()
		details := map[string]any{
			"shards":         s.Shards,
			"documents":      s.Documents,
			"max_vocabulary": maxVocabulary,
		}
		switch {
		case s.Shards == 0:
			return ComponentHealth{Status: StatusDown, Message: "no shards open", Details: details}
		case s.Documents == 0:
			return ComponentHealth{Status: StatusDegraded, Message: "collection is empty", Details: details}
		}
		return ComponentHealth{
			Status:  StatusUp,
			Message: fmt.Sprintf("%d shards, %d documents", s.Shards, s.Documents),
			Details: details,
		}
	}
}

// Pinger is a store that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Detailer is implemented by stores that expose counters worth reporting,
// such as connection pool statistics.
type Detailer interface {
	HealthDetails() map[string]any
}

// PingCheck reports Down when the store cannot be reached. A nil store is a
// disabled feature and reports Up.
func PingCheck(store Pinger) Check {
	return func(ctx context.Context) ComponentHealth {
		if store == nil {
			return ComponentHealth{Status: StatusUp, Message: "disabled"}
		}
		var details map[string]any
		if d, ok := store.(Detailer); ok {
			details = d.HealthDetails()
		}
		if err := store.Ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error(), Details: details}
		}
		return ComponentHealth{Status: StatusUp, Details: details}
	}
}
