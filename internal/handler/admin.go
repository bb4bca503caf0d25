package handler

import (
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"stockledger-api/internal/notify"
	"stockledger-api/internal/repository"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/response"
)

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	store     repository.Store
	hub       *notify.Hub
	scanner   *service.DriftScanner
	policy    service.Policy
	log       *zap.Logger
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(store repository.Store, hub *notify.Hub, scanner *service.DriftScanner, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		store:     store,
		hub:       hub,
		scanner:   scanner,
		log:       log,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if err := h.policy.RequireAdmin(caller(r)); err != nil {
		fail(w, r, h.log, err)
		return
	}

	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.store.Driver()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	dbStats, err := h.store.Stats(ctx)
	if err == nil {
		dbStats["status"] = "connected"
		stats["database"] = dbStats
	} else {
		stats["database"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	if h.hub != nil {
		stats["notifications"] = map[string]interface{}{
			"origin":      h.hub.Origin(),
			"subscribers": h.hub.SubscriberCount(),
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// ScanDrift handles POST /api/v1/admin/drift/scan
func (h *AdminHandler) ScanDrift(w http.ResponseWriter, r *http.Request) {
	if err := h.policy.RequireAdmin(caller(r)); err != nil {
		fail(w, r, h.log, err)
		return
	}

	drift, err := h.scanner.RunNow(r.Context())
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"drifted_items": len(drift),
		"items":         drift,
	})
}
