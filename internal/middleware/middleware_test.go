package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/internal/session"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Set Gin to test mode
	gin.SetMode(gin.TestMode)

	// Initialize logger for tests
	if err := logger.Initialize(logger.Config{Level: "debug", Environment: "development"}); err != nil {
		panic(err)
	}
}

func strPtr(s string) *string { return &s }

func guardedRouter(state session.State) (*gin.Engine, *bool) {
	called := false
	router := gin.New()
	router.Use(SessionGuardMiddleware(func() session.State { return state }))
	router.GET("/teachers", func(c *gin.Context) {
		called = true
		identity, ok := c.Get(IdentityContextKey)
		if !ok || identity.(*models.Identity) == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	return router, &called
}

func TestSessionGuard_AllowsConfirmedSession(t *testing.T) {
	router, called := guardedRouter(session.State{
		Identity:        &models.Identity{ID: "u-1", Nickname: strPtr("ana")},
		IsAuthenticated: true,
		SessionReady:    true,
		Confirmed:       true,
		Phase:           session.PhaseProfileComplete,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teachers", http.NoBody))

	assert.True(t, *called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionGuard_RejectsGuest(t *testing.T) {
	router, called := guardedRouter(session.State{SessionReady: true, Phase: session.PhaseGuest})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teachers", http.NoBody))

	assert.False(t, *called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Inicia sesión")
}

func TestSessionGuard_AsksToRetryWhileBootstrapping(t *testing.T) {
	router, called := guardedRouter(session.State{Loading: true, Phase: session.PhaseBootstrapping})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teachers", http.NoBody))

	assert.False(t, *called)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestSessionGuard_CachedIdentityIsNotEnough(t *testing.T) {
	router, called := guardedRouter(session.State{
		Identity:        &models.Identity{ID: "u-1", Nickname: strPtr("ana")},
		IsAuthenticated: true,
		Phase:           session.PhaseProfileComplete,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teachers", http.NoBody))

	assert.False(t, *called)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	var seen string
	router.GET("/test", func(c *gin.Context) {
		seen = c.GetString(RequestIDContextKey)
		c.Status(http.StatusOK)
	})

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	})

	t.Run("reuses a valid incoming id", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.Header.Set(RequestIDHeader, id)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, id, seen)
		assert.Equal(t, id, w.Header().Get(RequestIDHeader))
	})

	t.Run("replaces a malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.Header.Set(RequestIDHeader, "<script>")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.NotEqual(t, "<script>", seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})
}

func TestRateLimiter_RejectsBurstOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := NewRateLimiter(ctx, 0.001, 2)
	router := gin.New()
	router.GET("/test", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestBodySizeLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.POST("/login", BodySizeLimitMiddleware(16), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/api/v1/teachers/stream", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/teachers/stream", http.NoBody))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
}

func TestSanitizeQuery(t *testing.T) {
	got := sanitizeQuery(map[string][]string{
		"q":            {"rosa", "ignored"},
		"Access_Token": {"secret"},
		"email":        {"ana@example.com"},
		"page":         {},
	})

	assert.Equal(t, map[string]string{"q": "rosa"}, got)
}
