package session

import (
	"context"
	"time"

	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"go.uber.org/zap"
)

// settleTimeout bounds how long a foreground call waits for the resulting
// session event to be processed
const settleTimeout = 3 * time.Second

// SignIn authenticates with the identity provider. Rejections are returned
// to the caller; on success the state that reflects the new session is
// returned once the controller has processed it.
func (c *Controller) SignIn(ctx context.Context, email, password string) (State, error) {
	session, err := c.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("sign_in", "error").Inc()
		logger.Warn("Sign-in rejected", zap.Error(err))
		return c.Snapshot(), err
	}
	metrics.AuthAttempts.WithLabelValues("sign_in", "success").Inc()

	return c.settle(ctx, func(s State) bool {
		return s.Identity != nil && s.Identity.ID == session.User.ID && s.Confirmed
	}), nil
}

// SignUp registers a new account. When the provider requires e-mail
// confirmation no session is created and confirmationRequired is true.
func (c *Controller) SignUp(ctx context.Context, email, password string) (state State, confirmationRequired bool, err error) {
	res, err := c.auth.SignUp(ctx, email, password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("sign_up", "error").Inc()
		logger.Warn("Sign-up rejected", zap.Error(err))
		return c.Snapshot(), false, err
	}
	metrics.AuthAttempts.WithLabelValues("sign_up", "success").Inc()

	if res.Session == nil {
		logger.Info("Sign-up pending e-mail confirmation", zap.String("user_id", res.User.ID))
		return c.Snapshot(), true, nil
	}

	userID := res.Session.User.ID
	return c.settle(ctx, func(s State) bool {
		return s.Identity != nil && s.Identity.ID == userID && s.Confirmed
	}), false, nil
}

// SignOut ends the session with the identity provider
func (c *Controller) SignOut(ctx context.Context) (State, error) {
	if err := c.auth.SignOut(ctx); err != nil {
		metrics.AuthAttempts.WithLabelValues("sign_out", "error").Inc()
		logger.Warn("Sign-out failed", zap.Error(err))
		return c.Snapshot(), err
	}
	metrics.AuthAttempts.WithLabelValues("sign_out", "success").Inc()

	return c.settle(ctx, func(s State) bool {
		return !s.IsAuthenticated && s.SessionReady
	}), nil
}

func (c *Controller) settle(ctx context.Context, pred func(State) bool) State {
	waitCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	state, err := c.waitFor(waitCtx, pred)
	if err != nil {
		logger.Debug("Session change not yet reflected", zap.Error(err))
	}
	return state
}
