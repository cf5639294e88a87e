package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports how this instance is running.
type StatusHandler struct {
	Mode      string
	Storage   string
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, storage string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{Mode: mode, Storage: storage, StartedAt: startedAt}
}

// GetStatus responds with the run mode, storage backend and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"storage":        h.Storage,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
