package handlers

import (
	"net/http"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/i18n"
	"github.com/klyra-ai/klyra-backend/internal/services/metrics"
)

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Metrics   metrics.GlobalSnapshot `json:"metrics"`
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   h.cfg.Server.Version,
		Metrics:   h.collector.GlobalSnapshot(),
	})
}

// Root handles GET / as a liveness message
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": h.localizer.Get("", i18n.MsgAPIRunning, nil),
	})
}
