package handlers

import (
	"net/http"
	"time"

	"github.com/elegance-boutique/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system    services.SystemService
	startedAt time.Time
}

// NewHealthHandlers constructs the probe handlers. A nil system service keeps
// the liveness probe working and degrades readiness to a plain liveness check.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{
		system:    system,
		startedAt: time.Now().UTC(),
	}
}

// Healthz reports process liveness only.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, healthPayload{
		Status:    "ok",
		Uptime:    time.Since(h.startedAt).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz probes the backing dependencies and reports per-component status.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readinessPayload{
			Status:    "unavailable",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	payload := readinessPayload{
		Status:     "ok",
		Timestamp:  report.CheckedAt.UTC().Format(time.RFC3339),
		Components: make(map[string]componentPayload, len(report.Components)),
	}
	status := http.StatusOK
	if !report.Healthy {
		payload.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	for name, component := range report.Components {
		payload.Components[name] = componentPayload{
			Healthy: component.Healthy,
			Detail:  component.Detail,
		}
	}
	writeJSONResponse(w, status, payload)
}

type healthPayload struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

type readinessPayload struct {
	Status     string                      `json:"status"`
	Timestamp  string                      `json:"timestamp"`
	Components map[string]componentPayload `json:"components,omitempty"`
}

type componentPayload struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}
