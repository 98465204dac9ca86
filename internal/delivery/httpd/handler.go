package httpd

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/gateway"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/service"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/worker"
)

// Pinger reports backing-store reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	checkService service.CheckService
	checkWorker  worker.CheckWorker
	hub          *gateway.Hub
	registry     *gateway.Registry
	pinger       Pinger
	logger       zerolog.Logger
}

func NewHandler(
	checkService service.CheckService,
	checkWorker worker.CheckWorker,
	hub *gateway.Hub,
	registry *gateway.Registry,
	pinger Pinger,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		checkService: checkService,
		checkWorker:  checkWorker,
		hub:          hub,
		registry:     registry,
		pinger:       pinger,
		logger:       logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/stats", h.GetStats)

	router.Get("/ws", h.hub.HandleWS)

	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/checks", func(r chi.Router) {
			r.Post("/", h.SubmitCheck)
			r.Post("/{submission_id}/recheck", h.Recheck)
			r.Get("/{submission_id}", h.GetCheck)
			r.Get("/{submission_id}/status", h.GetCheckStatus)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	writeJSON(w, http.StatusOK, response)
}
