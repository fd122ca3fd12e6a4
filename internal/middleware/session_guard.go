package middleware

import (
	"errors"
	"net/http"

	"github.com/calificaprofe/calificaprofe-api/internal/session"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdentityContextKey is the key used to store the signed-in identity in context
const IdentityContextKey = "identity"

var (
	ErrSessionLoading = errors.New("session still loading")
	ErrNotAuthorized  = errors.New("no confirmed session")
)

// SessionGuardMiddleware admits requests only while the session is confirmed.
// While the session is still being established, or a cached identity awaits
// confirmation, the caller is asked to retry.
func SessionGuardMiddleware(snapshot func() session.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := snapshot()

		settling := !state.SessionReady && (state.Loading || state.IsAuthenticated)
		if !state.Authorized() && settling {
			_ = c.Error(ErrSessionLoading) //nolint:errcheck
			c.Header("Retry-After", "1")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Verificando sesión"})
			c.Abort()
			return
		}

		if !state.Authorized() {
			logger.Debug("Rejected request without a confirmed session",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.String("phase", string(state.Phase)))
			_ = c.Error(ErrNotAuthorized) //nolint:errcheck
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Inicia sesión para continuar"})
			c.Abort()
			return
		}

		c.Set(IdentityContextKey, state.Identity)
		c.Next()
	}
}
