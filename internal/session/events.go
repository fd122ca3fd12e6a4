package session

import (
	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/supabase"
	"go.uber.org/zap"
)

// Event is a session change as the controller understands it. The set of
// implementations is closed: Initial, SignedIn, SignedOut and TokenRefreshed.
type Event interface {
	// Kind names the event for logs and metrics
	Kind() string
	// Session is the payload, nil when there is none
	Session() *models.Session
	sealed()
}

// Initial is the first event of every subscription, carrying the restored session if any
type Initial struct{ Payload *models.Session }

// SignedIn follows a successful sign-in or sign-up
type SignedIn struct{ Payload *models.Session }

// SignedOut follows a sign-out or a rejected refresh
type SignedOut struct{}

// TokenRefreshed carries a session with a renewed access token
type TokenRefreshed struct{ Payload *models.Session }

func (Initial) Kind() string        { return "initial" }
func (SignedIn) Kind() string       { return "signed_in" }
func (SignedOut) Kind() string      { return "signed_out" }
func (TokenRefreshed) Kind() string { return "token_refreshed" }

func (e Initial) Session() *models.Session        { return e.Payload }
func (e SignedIn) Session() *models.Session       { return e.Payload }
func (SignedOut) Session() *models.Session        { return nil }
func (e TokenRefreshed) Session() *models.Session { return e.Payload }

func (Initial) sealed()        {}
func (SignedIn) sealed()       {}
func (SignedOut) sealed()      {}
func (TokenRefreshed) sealed() {}

// FromRemote translates a raw auth event. Kinds the controller does not act
// on are reported with ok=false.
func FromRemote(ev supabase.AuthEvent) (Event, bool) {
	session := ev.Session
	if session != nil && !session.Valid() {
		logger.Warn("Dropping malformed session payload", zap.String("event", string(ev.Kind)))
		session = nil
	}

	switch ev.Kind {
	case supabase.EventInitialSession:
		return Initial{Payload: session}, true
	case supabase.EventSignedIn:
		if session == nil {
			return SignedOut{}, true
		}
		return SignedIn{Payload: session}, true
	case supabase.EventSignedOut:
		return SignedOut{}, true
	case supabase.EventTokenRefreshed:
		if session == nil {
			return SignedOut{}, true
		}
		return TokenRefreshed{Payload: session}, true
	default:
		return nil, false
	}
}
