package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/calificaprofe/calificaprofe-api/config"
	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/internal/repository"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"github.com/calificaprofe/calificaprofe-api/pkg/retry"
	"github.com/calificaprofe/calificaprofe-api/pkg/supabase"
	"go.uber.org/zap"
)

const profileOperation = "user_profile"

// ErrNotStarted is returned by operations that need a running controller
var ErrNotStarted = errors.New("session controller not started")

// RemoteAuth is the identity provider as seen by the controller
type RemoteAuth interface {
	OnAuthStateChange() (<-chan supabase.AuthEvent, func())
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) (*supabase.SignUpResult, error)
	SignOut(ctx context.Context) error
}

// IdentityStore persists the last known identity between runs
type IdentityStore interface {
	Read(ctx context.Context) (*models.Identity, bool)
	Write(ctx context.Context, identity *models.Identity)
	Clear(ctx context.Context)
}

// Options tunes the controller
type Options struct {
	// SafetyTimeout forces loading off when no session event arrived in time
	SafetyTimeout time.Duration
	// ProfilePlan bounds the background profile lookup
	ProfilePlan retry.Plan
}

// OptionsFromConfig builds Options from configuration
func OptionsFromConfig(cfg config.SessionConfig) Options {
	return Options{
		SafetyTimeout: cfg.SafetyTimeout,
		ProfilePlan: retry.Plan{
			MaxAttempts: cfg.ProfileMaxAttempts,
			Timeout:     retry.LinearTimeout(cfg.ProfileTimeoutBase, cfg.ProfileTimeoutStep),
			Backoff:     retry.LinearBackoff(cfg.ProfileBackoffStep),
		},
	}
}

type profileResult struct {
	generation uint64
	userID     string
	profile    *models.Profile
	err        error
}

// Controller reconciles the identity provider's event stream with the cached
// identity and publishes one authoritative State.
//
// All transitions happen on a single goroutine: remote events, background
// profile results and the safety timer are handled strictly one at a time.
type Controller struct {
	auth       RemoteAuth
	profiles   repository.ProfileSource
	identities IdentityStore
	opts       Options

	mu      sync.RWMutex
	state   State
	subs    map[int]chan State
	nextSub int

	ready     chan struct{}
	readyOnce sync.Once

	cancel  context.CancelFunc
	done    chan struct{}
	results chan profileResult

	// owned by the event loop
	cached        *models.Identity
	generation    uint64
	processedUser string
}

// NewController creates a stopped controller
func NewController(auth RemoteAuth, profiles repository.ProfileSource, identities IdentityStore, opts Options) *Controller {
	if opts.SafetyTimeout <= 0 {
		opts.SafetyTimeout = 5 * time.Second
	}
	if opts.ProfilePlan.MaxAttempts < 1 {
		opts.ProfilePlan = retry.ProfilePlan()
	}
	if opts.ProfilePlan.Retryable == nil {
		opts.ProfilePlan.Retryable = func(err error) bool { return !repository.IsDefinitive(err) }
	}

	return &Controller{
		auth:       auth,
		profiles:   profiles,
		identities: identities,
		opts:       opts,
		state:      State{Loading: true, Phase: PhaseBootstrapping},
		subs:       make(map[int]chan State),
		ready:      make(chan struct{}),
		results:    make(chan profileResult),
	}
}

// Start hydrates the cached identity and begins processing session events.
// It does not block on the network.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	if cached, ok := c.identities.Read(ctx); ok {
		c.cached = cached
		c.publish(func(s *State) {
			s.Identity = cached.Clone()
			s.IsAuthenticated = true
			s.Loading = !cached.Complete()
		})
		logger.Info("Hydrated cached identity",
			zap.String("user_id", cached.ID),
			zap.Bool("complete", cached.Complete()))
	} else {
		recordPhase(PhaseBootstrapping)
	}

	events, unsubscribe := c.auth.OnAuthStateChange()
	go c.run(loopCtx, events, unsubscribe)
}

// Stop ends event processing and closes every subscription
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done

	c.mu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()
}

func (c *Controller) run(ctx context.Context, events <-chan supabase.AuthEvent, unsubscribe func()) {
	defer close(c.done)
	defer unsubscribe()

	safety := time.NewTimer(c.opts.SafetyTimeout)
	defer safety.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case raw, ok := <-events:
			if !ok {
				logger.Warn("Session event stream closed")
				return
			}
			ev, ok := FromRemote(raw)
			if !ok {
				logger.Warn("Ignoring unsupported session event", zap.String("event", string(raw.Kind)))
				continue
			}
			c.handle(ctx, ev)

		case res := <-c.results:
			c.applyProfile(ctx, res)

		case <-safety.C:
			c.expireSafetyTimer()
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev Event) {
	metrics.SessionEvents.WithLabelValues(ev.Kind()).Inc()

	session := ev.Session()
	if session == nil {
		c.signOut(ctx, ev)
		return
	}

	user := session.User
	current := c.Snapshot().Identity

	// Initial event with a complete cached profile for this user: trust the cache
	if _, initial := ev.(Initial); initial && c.cached.Complete() && c.cached.ID == user.ID {
		identity := c.cached.Clone()
		if user.Email != "" {
			identity.Email = user.Email
		}
		c.processedUser = user.ID
		c.publish(func(s *State) {
			s.Identity = identity
			s.IsAuthenticated = true
			s.Loading = false
			s.SessionReady = true
			s.Confirmed = true
		})
		logger.Info("Session restored from cached profile",
			zap.String("event", ev.Kind()),
			zap.String("user_id", user.ID))
		return
	}

	// Repeated delivery for a session already processed
	if c.processedUser == user.ID && current != nil && current.ID == user.ID {
		if _, signedIn := ev.(SignedIn); signedIn {
			logger.Debug("Ignoring duplicate sign-in", zap.String("user_id", user.ID))
			return
		}
		if _, refreshed := ev.(TokenRefreshed); refreshed {
			c.publish(func(s *State) {
				s.Loading = false
				s.SessionReady = true
				s.Confirmed = true
			})
			return
		}
	}

	seed := current
	if seed == nil || seed.ID != user.ID {
		seed = c.cached
	}
	provisional := models.ProvisionalIdentity(user, seed)

	c.generation++
	c.processedUser = user.ID
	c.cached = provisional.Clone()
	c.identities.Write(ctx, &provisional)
	c.publish(func(s *State) {
		s.Identity = provisional.Clone()
		s.IsAuthenticated = true
		s.Loading = false
		s.SessionReady = true
		s.Confirmed = true
	})

	logger.Info("Session established, completing profile",
		zap.String("event", ev.Kind()),
		zap.String("user_id", user.ID),
		zap.Bool("provisional_complete", provisional.Complete()))

	c.fetchProfile(ctx, c.generation, user.ID)
}

func (c *Controller) signOut(ctx context.Context, ev Event) {
	c.generation++
	c.processedUser = ""
	c.cached = nil
	c.identities.Clear(ctx)
	c.publish(func(s *State) {
		s.Identity = nil
		s.IsAuthenticated = false
		s.Loading = false
		s.SessionReady = true
		s.Confirmed = false
	})
	logger.Info("Session cleared", zap.String("event", ev.Kind()))
}

// fetchProfile runs the profile lookup in the background; its result comes
// back through the event loop tagged with the generation it was started for
func (c *Controller) fetchProfile(ctx context.Context, generation uint64, userID string) {
	go func() {
		profile, err := retry.Do(ctx, profileOperation, c.opts.ProfilePlan, func(ctx context.Context) (*models.Profile, error) {
			return c.profiles.GetProfile(ctx, userID)
		})
		select {
		case c.results <- profileResult{generation: generation, userID: userID, profile: profile, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (c *Controller) applyProfile(ctx context.Context, res profileResult) {
	current := c.Snapshot().Identity
	if res.generation != c.generation || current == nil || current.ID != res.userID {
		logger.Debug("Discarding superseded profile result", zap.String("user_id", res.userID))
		return
	}

	if res.err != nil {
		logger.Warn("Profile lookup failed, keeping provisional identity",
			zap.String("user_id", res.userID),
			zap.Error(res.err))
		return
	}

	identity := current.WithProfile(*res.profile)
	c.cached = identity.Clone()
	c.identities.Write(ctx, &identity)
	c.publish(func(s *State) {
		s.Identity = identity.Clone()
	})
	logger.Info("Profile completed",
		zap.String("user_id", res.userID),
		zap.Bool("complete", identity.Complete()))
}

func (c *Controller) expireSafetyTimer() {
	if !c.Snapshot().Loading {
		return
	}
	logger.Warn("No session event before safety timeout, releasing loading state",
		zap.Duration("timeout", c.opts.SafetyTimeout))
	c.publish(func(s *State) {
		s.Loading = false
	})
}

// publish applies mutate, derives the phase and notifies subscribers
func (c *Controller) publish(mutate func(*State)) {
	c.mu.Lock()
	mutate(&c.state)
	switch {
	case c.state.SessionReady && c.state.IsAuthenticated:
		c.state.Phase = phaseFor(c.state.Identity)
	case c.state.SessionReady:
		c.state.Phase = PhaseGuest
	default:
		c.state.Phase = PhaseBootstrapping
	}
	snapshot := c.state.clone()
	for _, ch := range c.subs {
		offer(ch, snapshot.clone())
	}
	c.mu.Unlock()

	recordPhase(snapshot.Phase)
	if !snapshot.Loading {
		c.readyOnce.Do(func() { close(c.ready) })
	}
}

// offer replaces any undelivered state with s
func offer(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Snapshot returns the current state
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// Subscribe streams state changes, starting with the current state. Slow
// readers only see the latest state. Call the returned func to unsubscribe.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan State, 1)
	ch <- c.state.clone()
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				close(ch)
				delete(c.subs, id)
			}
		})
	}
}

// Ready is closed once loading has been released
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// WaitReady blocks until loading is released or ctx is done
func (c *Controller) WaitReady(ctx context.Context) (State, error) {
	select {
	case <-c.ready:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// waitFor blocks until a published state satisfies pred
func (c *Controller) waitFor(ctx context.Context, pred func(State) bool) (State, error) {
	states, unsubscribe := c.Subscribe()
	defer unsubscribe()

	for {
		select {
		case s, ok := <-states:
			if !ok {
				return c.Snapshot(), ErrNotStarted
			}
			if pred(s) {
				return s, nil
			}
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}
