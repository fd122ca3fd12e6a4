package supabase

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	gotruetypes "github.com/supabase-community/gotrue-go/types"
	"go.uber.org/zap"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
	"github.com/calificaprofe/calificaprofe-api/pkg/jwt"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
)

// SessionStorage persists the current session across restarts
type SessionStorage interface {
	LoadSession(ctx context.Context) (*models.Session, error) // nil, nil when absent
	SaveSession(ctx context.Context, session *models.Session) error
	ClearSession(ctx context.Context) error
}

// AuthOptions configures Auth
type AuthOptions struct {
	Storage       SessionStorage
	Verifier      *jwt.Verifier
	RefreshMargin time.Duration    // refresh this long before expiry
	RetryDelay    time.Duration    // pause after a failed background refresh
	Now           func() time.Time // for tests
}

// SignUpResult is the outcome of a registration. Session is nil when the
// project requires email confirmation first.
type SignUpResult struct {
	User    models.AuthUser
	Session *models.Session
}

// Auth is the session half of the client: password grants, sign-out,
// token refresh and the auth state event stream.
type Auth struct {
	client *Client
	opts   AuthOptions

	mu          sync.Mutex
	session     *models.Session
	initialized bool
	subs        map[int]*subscriber
	nextID      int

	changed chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAuth creates the auth client. Data requests made through client carry
// the session's access token from then on.
func NewAuth(client *Client, opts AuthOptions) *Auth {
	if opts.Storage == nil {
		opts.Storage = NewMemoryStorage()
	}
	if opts.Verifier == nil {
		opts.Verifier = jwt.NewVerifier("")
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &Auth{
		client:  client,
		opts:    opts,
		subs:    map[int]*subscriber{},
		changed: make(chan struct{}, 1),
	}
	client.UseTokens(a)
	return a
}

// Start restores the persisted session and begins background refresh.
// INITIAL_SESSION is delivered to subscribers once the restore finishes.
func (a *Auth) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.done = make(chan struct{})
	a.mu.Unlock()

	go func() {
		defer close(a.done)
		a.initialize(ctx)
		a.refreshLoop(ctx)
	}()
}

// Stop ends background refresh and closes every subscription
func (a *Auth) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	subs := a.subs
	a.subs = map[int]*subscriber{}
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, s := range subs {
		s.close()
	}
}

func (a *Auth) initialize(ctx context.Context) {
	stored, err := a.opts.Storage.LoadSession(ctx)
	if err != nil {
		logger.Warn("Failed to load persisted session", zap.Error(err))
		stored = nil
	}

	session := a.restore(ctx, stored)

	a.mu.Lock()
	a.session = session
	a.initialized = true
	for _, s := range a.subs {
		a.prime(s)
	}
	a.mu.Unlock()
	a.notifyChanged()

	logger.Info("Auth session restored", zap.Bool("has_session", session != nil))
}

// restore validates a persisted session, refreshing it when it is about to expire
func (a *Auth) restore(ctx context.Context, stored *models.Session) *models.Session {
	if !stored.Valid() {
		return nil
	}

	if _, err := a.opts.Verifier.Parse(stored.AccessToken); err != nil && !apperrors.Is(err, jwt.ErrExpiredToken) {
		logger.Warn("Discarding persisted session with invalid token", zap.Error(err))
		a.clearStorage(ctx)
		return nil
	}

	if !stored.ExpiresWithin(a.opts.RefreshMargin, a.opts.Now()) {
		return stored
	}

	fresh, err := a.grantRefresh(ctx, stored.RefreshToken)
	if err != nil {
		if IsDefinitive(err) {
			logger.Info("Persisted session could not be refreshed, signing out", zap.Error(err))
			a.clearStorage(ctx)
			return nil
		}
		// Keep it; the refresh loop retries
		logger.Warn("Failed to refresh persisted session", zap.Error(err))
		return stored
	}
	a.persist(ctx, fresh)
	return fresh
}

// prime delivers INITIAL_SESSION. Caller holds a.mu.
func (a *Auth) prime(s *subscriber) {
	s.primed = true
	s.push(AuthEvent{Kind: EventInitialSession, Session: cloneSession(a.session)})
}

// OnAuthStateChange subscribes to auth events. The first event is always
// INITIAL_SESSION. The channel is closed after unsubscribe or Stop.
func (a *Auth) OnAuthStateChange() (<-chan AuthEvent, func()) {
	s := newSubscriber()

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = s
	if a.initialized {
		a.prime(s)
	}
	a.mu.Unlock()

	return s.out, func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
		s.close()
	}
}

// AccessToken returns the current access token, or "" when signed out
func (a *Auth) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

// Session returns a copy of the current session, or nil
func (a *Auth) Session() *models.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneSession(a.session)
}

// SignInWithPassword exchanges credentials for a session
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	var resp *gotruetypes.TokenResponse
	err := a.client.authCall(ctx, "sign_in", "", func(api gotrue.Client) error {
		var err error
		resp, err = api.SignInWithEmailPassword(email, password)
		return err
	})
	if err != nil {
		return nil, err
	}

	session := fromRemoteSession(resp.Session)
	if err := a.complete(&session); err != nil {
		return nil, err
	}
	a.setSession(ctx, EventSignedIn, &session)
	return cloneSession(&session), nil
}

// SignUp registers a new account
func (a *Auth) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	var resp *gotruetypes.SignupResponse
	err := a.client.authCall(ctx, "sign_up", "", func(api gotrue.Client) error {
		var err error
		resp, err = api.Signup(gotruetypes.SignupRequest{Email: email, Password: password})
		return err
	})
	if err != nil {
		return nil, err
	}

	if resp.Session.AccessToken == "" {
		return &SignUpResult{User: fromRemoteUser(resp.User)}, nil
	}

	session := fromRemoteSession(resp.Session)
	if err := a.complete(&session); err != nil {
		return nil, err
	}
	a.setSession(ctx, EventSignedIn, &session)
	return &SignUpResult{User: session.User, Session: cloneSession(&session)}, nil
}

// SignOut revokes the session remotely and clears it locally. A token the
// server no longer knows still signs out locally.
func (a *Auth) SignOut(ctx context.Context) error {
	token := a.AccessToken()
	if token != "" {
		err := a.client.authCall(ctx, "sign_out", token, func(api gotrue.Client) error {
			return api.Logout()
		})
		if err != nil && !ignorableSignOutError(err) {
			return err
		}
	}

	a.setSession(ctx, EventSignedOut, nil)
	return nil
}

func ignorableSignOutError(err error) bool {
	var apiErr *APIError
	if !apperrors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized ||
		apiErr.Status == http.StatusForbidden ||
		apiErr.Status == http.StatusNotFound
}

// RefreshSession trades the refresh token for a new session. A rejected
// refresh token signs the user out.
func (a *Auth) RefreshSession(ctx context.Context) (*models.Session, error) {
	a.mu.Lock()
	current := cloneSession(a.session)
	a.mu.Unlock()

	if current == nil || current.RefreshToken == "" {
		return nil, apperrors.ErrUnauthorized
	}

	session, err := a.grantRefresh(ctx, current.RefreshToken)
	if err != nil {
		if IsDefinitive(err) {
			logger.Warn("Refresh token rejected, signing out", zap.Error(err))
			a.setSession(ctx, EventSignedOut, nil)
		}
		return nil, err
	}

	a.setSession(ctx, EventTokenRefreshed, session)
	return cloneSession(session), nil
}

func (a *Auth) grantRefresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	var resp *gotruetypes.TokenResponse
	err := a.client.authCall(ctx, "refresh_token", "", func(api gotrue.Client) error {
		var err error
		resp, err = api.RefreshToken(refreshToken)
		return err
	})
	if err != nil {
		return nil, err
	}

	session := fromRemoteSession(resp.Session)
	if err := a.complete(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// complete fills expiry and user fields from the token when the payload omits them
func (a *Auth) complete(s *models.Session) error {
	if s.AccessToken == "" {
		return apperrors.InternalError("auth response without access token")
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = a.opts.Now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}

	claims, err := a.opts.Verifier.Parse(s.AccessToken)
	if err != nil {
		if a.opts.Verifier.Verifies() {
			return apperrors.InvalidCredentialsError("access token rejected: " + err.Error())
		}
		// Opaque tokens are fine when we are not verifying
		if s.User.ID == "" {
			return apperrors.InternalError("auth response without user")
		}
		return nil
	}

	if s.User.ID == "" {
		s.User.ID = claims.UserID()
	}
	if s.User.Email == "" {
		s.User.Email = claims.Email
	}
	if s.ExpiresAt == 0 {
		if exp := claims.ExpiresAt(); !exp.IsZero() {
			s.ExpiresAt = exp.Unix()
		}
	}
	return nil
}

// setSession stores session (nil clears it) and emits kind to subscribers
func (a *Auth) setSession(ctx context.Context, kind AuthEventKind, session *models.Session) {
	if session != nil {
		a.persist(ctx, session)
	} else {
		a.clearStorage(ctx)
	}

	a.mu.Lock()
	a.session = cloneSession(session)
	for _, s := range a.subs {
		if s.primed {
			s.push(AuthEvent{Kind: kind, Session: cloneSession(session)})
		}
	}
	a.mu.Unlock()
	a.notifyChanged()

	logger.Info("Auth state changed", zap.String("event", string(kind)))
}

func (a *Auth) persist(ctx context.Context, session *models.Session) {
	if err := a.opts.Storage.SaveSession(ctx, session); err != nil {
		logger.Warn("Failed to persist session", zap.Error(err))
	}
}

func (a *Auth) clearStorage(ctx context.Context) {
	if err := a.opts.Storage.ClearSession(ctx); err != nil {
		logger.Warn("Failed to clear persisted session", zap.Error(err))
	}
}

func (a *Auth) notifyChanged() {
	select {
	case a.changed <- struct{}{}:
	default:
	}
}

// refreshLoop refreshes the session RefreshMargin before it expires
func (a *Auth) refreshLoop(ctx context.Context) {
	for {
		a.mu.Lock()
		session := cloneSession(a.session)
		a.mu.Unlock()

		var timer *time.Timer
		var fire <-chan time.Time
		if session != nil && session.RefreshToken != "" && !session.Expiry().IsZero() {
			wait := session.Expiry().Sub(a.opts.Now()) - a.opts.RefreshMargin
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-a.changed:
			stopTimer(timer)
			continue
		case <-fire:
		}

		if _, err := a.RefreshSession(ctx); err != nil && !IsDefinitive(err) {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Background token refresh failed, will retry",
				zap.Duration("delay", a.opts.RetryDelay),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.opts.RetryDelay):
			}
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func fromRemoteSession(s gotruetypes.Session) models.Session {
	return models.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
		User:         fromRemoteUser(s.User),
	}
}

func fromRemoteUser(u gotruetypes.User) models.AuthUser {
	user := models.AuthUser{
		Email:            u.Email,
		Role:             u.Role,
		EmailConfirmedAt: u.EmailConfirmedAt,
	}
	if u.ID != uuid.Nil {
		user.ID = u.ID.String()
	}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		user.CreatedAt = &created
	}
	return user
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
