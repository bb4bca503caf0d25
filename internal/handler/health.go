package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"stockledger-api/internal/repository"
	"stockledger-api/pkg/response"
)

// StartTime tracks when the server started for uptime calculation
var StartTime = time.Now()

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler contains shared HTTP handlers and their dependencies.
type Handler struct {
	store   repository.Store
	version string
	checks  map[string]Pinger
}

// New creates a new handler. Extra named dependencies are included in the
// readiness check.
func New(store repository.Store, version string, checks map[string]Pinger) *Handler {
	return &Handler{store: store, version: version, checks: checks}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	response.OK(w, resp)
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ready handles GET /api/v1/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := []Check{{Name: "api", Status: "ok"}, ping(ctx, "database", h.store)}
	for name, p := range h.checks {
		checks = append(checks, ping(ctx, name, p))
	}

	allReady := true
	for _, check := range checks {
		if check.Status != "ok" {
			allReady = false
			break
		}
	}

	resp := ReadyResponse{
		Ready:     allReady,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}

	if !allReady {
		response.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	response.OK(w, resp)
}

func ping(ctx context.Context, name string, p Pinger) Check {
	if err := p.Ping(ctx); err != nil {
		return Check{Name: name, Status: "error", Error: err.Error()}
	}
	return Check{Name: name, Status: "ok"}
}

// StatusChecks represents the checks in status response
type StatusChecks struct {
	Database     string            `json:"database"`
	Driver       string            `json:"driver"`
	MemoryMB     float64           `json:"memory_mb"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// StatusResponse represents the unified status response for monitoring
type StatusResponse struct {
	Service       string       `json:"service"`
	Status        string       `json:"status"`
	Timestamp     string       `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	PingMS        int64        `json:"ping_ms"`
	Checks        StatusChecks `json:"checks"`
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	requestStart := time.Now()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	status, database := "ok", "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		status, database = "degraded", "error"
	}
	pingMS := time.Since(requestStart).Milliseconds()

	var deps map[string]string
	if len(h.checks) > 0 {
		deps = make(map[string]string, len(h.checks))
		for name, p := range h.checks {
			deps[name] = ping(r.Context(), name, p).Status
			if deps[name] != "ok" {
				status = "degraded"
			}
		}
	}

	resp := StatusResponse{
		Service:       "stockledger-api",
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(StartTime).Seconds()),
		PingMS:        pingMS,
		Checks: StatusChecks{
			Database:     database,
			Driver:       h.store.Driver(),
			MemoryMB:     float64(int(memoryMB*100)) / 100,
			Dependencies: deps,
		},
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, resp)
}
