package handlers

import (
	"context"
	"net/http"

	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
	"github.com/gin-gonic/gin"
)

// attachError attaches err to the gin context so the observability middleware
// can include the reason in the request log. c.Error() returns *gin.Error (not
// the error interface), so we suppress errcheck here intentionally.
func attachError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err) //nolint:errcheck
	}
}

// respondError sends an error JSON response and attaches the error to the gin context
// so the observability middleware can include the reason in the request log.
func respondError(c *gin.Context, status int, message string, err error) {
	attachError(c, err)
	c.JSON(status, gin.H{"error": message})
}

// respondErrorWithDetails sends an error response with an additional details field.
func respondErrorWithDetails(c *gin.Context, status int, message string, details any, err error) { //nolint:unparam
	attachError(c, err)
	c.JSON(status, gin.H{"error": message, "details": details})
}

// statusForError maps application errors onto an HTTP status and the
// message shown to the user
func statusForError(err error) (int, string) {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Correo o contraseña incorrectos"
	case apperrors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "Ya existe una cuenta con ese correo"
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "Datos inválidos"
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "No autorizado"
	case apperrors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "No encontrado"
	case apperrors.Is(err, apperrors.ErrUnavailable), apperrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "El servicio no está disponible, inténtalo más tarde"
	default:
		return http.StatusInternalServerError, "Ocurrió un error inesperado"
	}
}
