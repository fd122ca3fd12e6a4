package retry

import (
	"time"
)

// Plan describes how a single resilient fetch is attempted.
// Attempts are numbered from 1.
type Plan struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
	// Timeout returns the deadline for the given attempt. Zero or negative means no deadline.
	Timeout func(attempt int) time.Duration
	// Backoff returns the pause after the given failed attempt
	Backoff func(attempt int) time.Duration
	// Retryable reports whether a failure may be retried. Nil retries everything.
	Retryable func(error) bool
	// OnRetry is called before sleeping between attempts
	OnRetry func(attempt int, delay time.Duration, err error)
}

// LinearTimeout returns base + attempt*step
func LinearTimeout(base, step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base + time.Duration(attempt)*step
	}
}

// LinearBackoff returns step*attempt
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// ListingPlan returns the plan used for the teacher listing query:
// 4 attempts with 10s, 15s, 20s, 25s timeouts and 2s, 4s, 6s pauses.
func ListingPlan() Plan {
	return Plan{
		MaxAttempts: 4,
		Timeout:     LinearTimeout(5*time.Second, 5*time.Second),
		Backoff:     LinearBackoff(2 * time.Second),
	}
}

// ProfilePlan returns the plan used for the background profile lookup
func ProfilePlan() Plan {
	return Plan{
		MaxAttempts: 3,
		Timeout:     LinearTimeout(3*time.Second, 2*time.Second),
		Backoff:     LinearBackoff(time.Second),
	}
}

func (p Plan) normalized() Plan {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Timeout == nil {
		p.Timeout = func(int) time.Duration { return 0 }
	}
	if p.Backoff == nil {
		p.Backoff = func(int) time.Duration { return 0 }
	}
	return p
}
