package httpd

import (
	"net/http"
	"time"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if err := h.pinger.Ping(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Database unreachable")
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"service":   "scoring-gateway",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}

	writeJSON(w, code, response)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"worker":      h.checkWorker.Stats(),
		"connections": h.registry.ConnectionCount(),
		"rooms":       h.registry.RoomCount(),
	}

	writeSuccess(w, stats)
}
