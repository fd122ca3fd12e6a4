package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
	"github.com/calificaprofe/calificaprofe-api/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret = "super-secret-jwt-token-with-at-least-32-characters"

	anaID   = "5f0c1d2e-3a4b-4c5d-8e6f-7a8b9c0d1e2f"
	nuevoID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

func signedToken(t *testing.T, userID, email string, ttl time.Duration) string {
	t.Helper()
	tok, err := jwt.Sign(jwtSecret, jwt.NewClaims(userID, email, ttl))
	require.NoError(t, err)
	return tok
}

func sessionJSON(t *testing.T, w http.ResponseWriter, userID, email, refresh string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  signedToken(t, userID, email, time.Hour),
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          map[string]any{"id": userID, "email": email},
	})
}

func nextEvent(t *testing.T, events <-chan AuthEvent) AuthEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth event")
		return AuthEvent{}
	}
}

func startAuth(t *testing.T, client *Client, storage SessionStorage) *Auth {
	t.Helper()
	auth := NewAuth(client, AuthOptions{
		Storage:  storage,
		Verifier: jwt.NewVerifier(jwtSecret),
	})
	auth.Start(context.Background())
	t.Cleanup(auth.Stop)
	return auth
}

func TestAuth_InitialThenSignedIn(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@uni.pe", body["email"])
		sessionJSON(t, w, anaID, "ana@uni.pe", "refresh-1")
	})
	storage := NewMemoryStorage()
	auth := startAuth(t, client, storage)

	events, unsubscribe := auth.OnAuthStateChange()
	defer unsubscribe()

	initial := nextEvent(t, events)
	assert.Equal(t, EventInitialSession, initial.Kind)
	assert.Nil(t, initial.Session)

	session, err := auth.SignInWithPassword(context.Background(), "ana@uni.pe", "secreto1")
	require.NoError(t, err)
	assert.Equal(t, anaID, session.User.ID)
	assert.NotZero(t, session.ExpiresAt)

	signedIn := nextEvent(t, events)
	assert.Equal(t, EventSignedIn, signedIn.Kind)
	require.NotNil(t, signedIn.Session)
	assert.Equal(t, anaID, signedIn.Session.User.ID)

	stored, err := storage.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	assert.Equal(t, session.AccessToken, auth.AccessToken())
}

func TestAuth_SignInRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`))
	})
	auth := startAuth(t, client, nil)

	_, err := auth.SignInWithPassword(context.Background(), "ana@uni.pe", "wrong-pass")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidCredentials))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_credentials", apiErr.Code)
	assert.Equal(t, "Invalid login credentials", apiErr.Message)
	assert.Nil(t, auth.Session())
}

func TestAuth_SignUpConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`))
	})
	auth := startAuth(t, client, nil)

	_, err := auth.SignUp(context.Background(), "ana@uni.pe", "secreto1")
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestAuth_SignUpPendingConfirmation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"` + nuevoID + `","email":"nuevo@uni.pe","confirmation_sent_at":"2026-03-01T10:00:00Z"}`))
	})
	auth := startAuth(t, client, nil)

	res, err := auth.SignUp(context.Background(), "nuevo@uni.pe", "secreto1")
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	assert.Equal(t, nuevoID, res.User.ID)
	assert.Nil(t, auth.Session())
}

func TestAuth_SignOutClearsSession(t *testing.T) {
	var logoutAuth atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			sessionJSON(t, w, anaID, "ana@uni.pe", "refresh-1")
		case "/auth/v1/logout":
			logoutAuth.Store(r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		}
	})
	storage := NewMemoryStorage()
	auth := startAuth(t, client, storage)
	events, unsubscribe := auth.OnAuthStateChange()
	defer unsubscribe()
	nextEvent(t, events)

	session, err := auth.SignInWithPassword(context.Background(), "ana@uni.pe", "secreto1")
	require.NoError(t, err)
	nextEvent(t, events)

	require.NoError(t, auth.SignOut(context.Background()))

	ev := nextEvent(t, events)
	assert.Equal(t, EventSignedOut, ev.Kind)
	assert.Nil(t, ev.Session)
	assert.Nil(t, auth.Session())
	assert.Equal(t, "Bearer "+session.AccessToken, logoutAuth.Load())

	stored, err := storage.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestAuth_SignOutWithUnknownTokenStillSignsOut(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	storage := NewMemoryStorage()
	require.NoError(t, storage.SaveSession(context.Background(), &models.Session{
		AccessToken: signedToken(t, anaID, "ana@uni.pe", time.Hour),
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		User:        models.AuthUser{ID: anaID},
	}))
	auth := startAuth(t, client, storage)
	events, unsubscribe := auth.OnAuthStateChange()
	defer unsubscribe()
	require.NotNil(t, nextEvent(t, events).Session)

	require.NoError(t, auth.SignOut(context.Background()))
	assert.Equal(t, EventSignedOut, nextEvent(t, events).Kind)
}

func TestAuth_RestoresPersistedSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	storage := NewMemoryStorage()
	require.NoError(t, storage.SaveSession(context.Background(), &models.Session{
		AccessToken:  signedToken(t, anaID, "ana@uni.pe", time.Hour),
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         models.AuthUser{ID: anaID, Email: "ana@uni.pe"},
	}))

	auth := startAuth(t, client, storage)
	events, unsubscribe := auth.OnAuthStateChange()
	defer unsubscribe()

	ev := nextEvent(t, events)
	assert.Equal(t, EventInitialSession, ev.Kind)
	require.NotNil(t, ev.Session)
	assert.Equal(t, anaID, ev.Session.User.ID)
}

func TestAuth_RefreshesExpiringSessionOnStart(t *testing.T) {
	var refreshes atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		refreshes.Add(1)
		sessionJSON(t, w, anaID, "ana@uni.pe", "refresh-2")
	})
	storage := NewMemoryStorage()
	require.NoError(t, storage.SaveSession(context.Background(), &models.Session{
		AccessToken:  signedToken(t, anaID, "ana@uni.pe", 10*time.Second),
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(10 * time.Second).Unix(),
		User:         models.AuthUser{ID: anaID},
	}))

	auth := startAuth(t, client, storage)
	events, unsubscribe := auth.OnAuthStateChange()
	defer unsubscribe()

	ev := nextEvent(t, events)
	assert.Equal(t, EventInitialSession, ev.Kind)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "refresh-2", ev.Session.RefreshToken)
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestAuth_RejectedRefreshSignsOut(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("grant_type") {
		case "password":
			sessionJSON(t, w, anaID, "ana@uni.pe", "refresh-1")
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`))
		}
	})
	auth := startAuth(t, client, nil)
	events, unsubscribe := auth.OnAuthStateChange()
	defer unsubscribe()
	nextEvent(t, events)

	_, err := auth.SignInWithPassword(context.Background(), "ana@uni.pe", "secreto1")
	require.NoError(t, err)
	nextEvent(t, events)

	_, err = auth.RefreshSession(context.Background())
	require.Error(t, err)
	assert.True(t, IsDefinitive(err))
	assert.Equal(t, EventSignedOut, nextEvent(t, events).Kind)
}

func TestAuth_DataRequestsUseSessionToken(t *testing.T) {
	var dataAuth atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/token" {
			sessionJSON(t, w, anaID, "ana@uni.pe", "refresh-1")
			return
		}
		dataAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"nickname":"condor","role":"student","status":"active"}`))
	})
	auth := startAuth(t, client, nil)

	session, err := auth.SignInWithPassword(context.Background(), "ana@uni.pe", "secreto1")
	require.NoError(t, err)

	var profile models.Profile
	_, err = client.Rest(context.Background(), "select Users", func(rest *postgrest.Client) *postgrest.FilterBuilder {
		return rest.From("Users").Select(models.ProfileColumns, "", false).Eq("id", session.User.ID).Single()
	}, &profile)
	require.NoError(t, err)
	assert.Equal(t, "condor", *profile.Nickname)
	assert.Equal(t, "Bearer "+session.AccessToken, dataAuth.Load())
}

func TestAuth_UnsubscribeClosesStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	auth := startAuth(t, client, nil)

	events, unsubscribe := auth.OnAuthStateChange()
	nextEvent(t, events)
	unsubscribe()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
}
