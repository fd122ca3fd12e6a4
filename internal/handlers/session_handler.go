package handlers

import (
	"io"
	"net/http"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/internal/services"
	"github.com/calificaprofe/calificaprofe-api/internal/session"
	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the session signal
type SessionHandler struct {
	service services.SessionServiceInterface
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service services.SessionServiceInterface) *SessionHandler {
	return &SessionHandler{
		service: service,
	}
}

// GetSession handles GET /api/v1/session
func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionState(h.service.Snapshot()))
}

// StreamSession handles GET /api/v1/session/stream
// Sends the current state, then every change, as server-sent events
func (h *SessionHandler) StreamSession(c *gin.Context) {
	updates, unsubscribe := h.service.Subscribe()
	defer unsubscribe()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case state, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("session", toSessionState(state))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func toSessionState(s session.State) models.SessionState {
	return models.SessionState{
		Identity:        s.Identity,
		IsAuthenticated: s.IsAuthenticated,
		Loading:         s.Loading,
		SessionReady:    s.SessionReady,
		Phase:           string(s.Phase),
		DisplayName:     s.Identity.DisplayName(),
		Initial:         s.Identity.Initial(),
	}
}
