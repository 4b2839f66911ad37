package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lorebase/lorebase/internal/knowledge"
)

// statsHandler holds dependencies for the stats endpoint.
type statsHandler struct {
	knowledge Knowledge
	logger    *slog.Logger
}

// getStats handles GET /api/v1/stats: store and search statistics.
func (h *statsHandler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.knowledge.Stats(r.Context())
	if err != nil {
		if errors.Is(err, knowledge.ErrNotInitialized) {
			WriteError(w, http.StatusServiceUnavailable, "not_ready", "knowledge layer not initialized", h.logger)
			return
		}
		h.logger.Error("collecting stats", "error", err)
		WriteError(w, http.StatusInternalServerError, "stats_failed", "failed to get stats", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, stats, h.logger)
}
