package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"cloudpico-sensorbridge/internal/utils"
)

type healthResponse struct {
	Status       string     `json:"status"`
	Database     string     `json:"database"`
	MQTT         string     `json:"mqtt"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

type healthchecker struct {
	deps Deps
}

func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok", MQTT: "connected"}
	status := http.StatusOK

	if h.deps.DB != nil {
		var ok int
		if err := h.deps.DB.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
			slog.Error("failed to check database connectivity", "error", err)
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.deps.Connected != nil && !h.deps.Connected() {
		// Readings are queued while the broker is away; report but stay up.
		resp.Status, resp.MQTT = "degraded", "disconnected"
	}
	if h.deps.LastActivity != nil {
		if t := h.deps.LastActivity(); !t.IsZero() {
			resp.LastActivity = &t
		}
	}
	utils.WriteJSON(w, status, resp)
}

func registerHealthcheck(mux *http.ServeMux, d Deps) {
	h := &healthchecker{deps: d}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
