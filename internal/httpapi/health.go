// Package httpapi exposes the process's ambient HTTP surface: health,
// readiness, liveness and Prometheus metrics. The request/response
// handlers that wrap the core pipeline (§1 "out of scope") live
// elsewhere, outside this specification's reach.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler answers process-level health checks; it never touches
// the database or any adapter, so it stays cheap enough for a
// container orchestrator to poll aggressively.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Routes mounts health/readiness/liveness under r.
func (h *HealthHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleHealth)
	r.Get("/readiness", h.HandleReady)
	r.Get("/liveness", h.HandleLiveness)
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, "ok")
}

func (h *HealthHandler) HandleReady(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, "ready")
}

func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, "alive")
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
