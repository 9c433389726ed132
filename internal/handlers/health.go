package handlers

import (
	"net/http"

	"github.com/bobmcallan/lingqian/internal/common"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	logger   *common.Logger
	sessions func() int
}

// NewHealthHandler creates a new health handler. sessions may be nil.
func NewHealthHandler(logger *common.Logger, sessions func() int) *HealthHandler {
	return &HealthHandler{logger: logger, sessions: sessions}
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	body := map[string]interface{}{
		"status": "ok",
	}
	if h.sessions != nil {
		body["sessions"] = h.sessions()
	}
	WriteJSON(w, http.StatusOK, body)
}
