package handlers

import (
	"net/http"

	"github.com/calificaprofe/calificaprofe-api/internal/session"
	"github.com/gin-gonic/gin"
)

// sessionHealth is the public view of the session in the health report.
// It carries no identity data.
type sessionHealth struct {
	Phase         string `json:"phase"`
	SessionReady  bool   `json:"session_ready"`
	Loading       bool   `json:"loading"`
	Authenticated bool   `json:"authenticated"`
}

// HealthHandler reports whether the session controller has settled
type HealthHandler struct {
	ready    func() bool
	snapshot func() session.State
}

// NewHealthHandler creates a HealthHandler. ready reports whether the first
// auth event (or the safety timer) has settled the controller.
func NewHealthHandler(ready func() bool, snapshot func() session.State) *HealthHandler {
	return &HealthHandler{
		ready:    ready,
		snapshot: snapshot,
	}
}

// Healthcheck handles GET /api/healthcheck
func (h *HealthHandler) Healthcheck(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")

	state := h.snapshot()
	report := sessionHealth{
		Phase:         string(state.Phase),
		SessionReady:  state.SessionReady,
		Loading:       state.Loading,
		Authenticated: state.IsAuthenticated,
	}

	if !h.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"reason":  "session not initialized",
			"session": report,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"session": report,
	})
}
