package handlers

import (
	"net/http"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/internal/services"
	"github.com/calificaprofe/calificaprofe-api/internal/session"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles the foreground auth actions
type AuthHandler struct {
	service services.SessionServiceInterface
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service services.SessionServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, "Validation failed", ParseValidationErrors(err), err)
		return
	}

	state, err := h.service.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse(state, false))
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, "Validation failed", ParseValidationErrors(err), err)
		return
	}

	state, confirmationRequired, err := h.service.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	status := http.StatusCreated
	if confirmationRequired {
		status = http.StatusAccepted
	}
	c.JSON(status, authResponse(state, confirmationRequired))
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	state, err := h.service.SignOut(c.Request.Context())
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse(state, false))
}

func (h *AuthHandler) respondAuthError(c *gin.Context, err error) {
	status, message := statusForError(err)
	attachError(c, err)
	c.JSON(status, models.AuthResponse{
		Success: false,
		Error:   message,
	})
}

func authResponse(state session.State, confirmationRequired bool) models.AuthResponse {
	s := toSessionState(state)
	return models.AuthResponse{
		Success:              true,
		Identity:             state.Identity,
		Session:              &s,
		ConfirmationRequired: confirmationRequired,
	}
}
