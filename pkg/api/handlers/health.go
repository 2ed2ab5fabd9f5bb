package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/skyforge/fitsflow/pkg/jobs"
	"github.com/skyforge/fitsflow/pkg/storage"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the server ready to accept requests?
type HealthHandler struct {
	registry *jobs.Registry
	provider storage.Provider
}

// NewHealthHandler creates a new health handler.
//
// Both parameters may be nil, in which case the readiness check returns
// unhealthy status.
func NewHealthHandler(registry *jobs.Registry, provider storage.Provider) *HealthHandler {
	return &HealthHandler{registry: registry, provider: provider}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. This endpoint is designed
// for Kubernetes liveness probes and should always succeed as long as the
// HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "fitsflow",
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK if the server is ready to accept requests. This checks:
//   - Job registry is initialized
//   - Storage provider is initialized and reachable
//
// Returns 503 Service Unavailable if the server is not ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("job registry not initialized"))
		return
	}
	if h.provider == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("storage provider not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// A missing probe key is fine; only a transport failure is unhealthy
	if _, err := h.provider.Exists(ctx, ".fitsflow-ready"); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("storage probe failed: "+err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"provider":    h.provider.Name(),
		"active_jobs": len(h.registry.ActiveIDs()),
	}))
}
