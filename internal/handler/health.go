package handler

import (
	"net/http"
	"time"
)

// HealthHandler answers liveness probes.
type HealthHandler struct {
	started time.Time
	now     func() time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now(), now: time.Now}
}

type healthResponse struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Uptime    float64 `json:"uptime"` // seconds
	Timestamp string  `json:"timestamp"`
}

// HTTP: GET /api/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Message:   "Server is running",
		Uptime:    now.Sub(h.started).Seconds(),
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}
