package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calificaprofe/calificaprofe-api/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPlan(maxAttempts int) retry.Plan {
	return retry.Plan{
		MaxAttempts: maxAttempts,
		Timeout:     retry.LinearTimeout(10*time.Millisecond, 5*time.Millisecond),
		Backoff:     retry.LinearBackoff(time.Millisecond),
	}
}

func TestDo_ExhaustsAfterMaxAttemptsOnTimeout(t *testing.T) {
	var calls atomic.Int32
	hang := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, err := retry.Do(context.Background(), "hang", fastPlan(3), hang)

	require.Error(t, err)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, retry.ErrAttemptTimeout)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_ReturnsPayloadUnmodified(t *testing.T) {
	payload := []int{3, 1, 2}
	res, err := retry.Do(context.Background(), "ok", fastPlan(3), func(ctx context.Context) ([]int, error) {
		return payload, nil
	})

	require.NoError(t, err)
	assert.Equal(t, payload, res)
}

func TestDo_SucceedsOnLaterAttempt(t *testing.T) {
	var calls atomic.Int32
	res, err := retry.Do(context.Background(), "flaky", fastPlan(4), func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection reset")
		}
		return "rows", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "rows", res)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_CarriesLastFailure(t *testing.T) {
	var calls atomic.Int32
	_, err := retry.Do(context.Background(), "failing", fastPlan(2), func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("first")
		}
		return "", errors.New("second")
	})

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.EqualError(t, exhausted.Last, "second")
	assert.True(t, retry.IsExhausted(err))
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	rejected := errors.New("invalid credentials")
	plan := fastPlan(4)
	plan.Retryable = func(err error) bool { return !errors.Is(err, rejected) }

	var calls atomic.Int32
	_, err := retry.Do(context.Background(), "signin", plan, func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", rejected
	})

	assert.ErrorIs(t, err, rejected)
	assert.False(t, retry.IsExhausted(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	plan := fastPlan(5)
	plan.OnRetry = func(attempt int, delay time.Duration, err error) { cancel() }

	var calls atomic.Int32
	_, err := retry.Do(ctx, "cancelled", plan, func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_BackoffDelaysAreNonDecreasing(t *testing.T) {
	var delays []time.Duration
	plan := fastPlan(4)
	plan.OnRetry = func(attempt int, delay time.Duration, err error) {
		delays = append(delays, delay)
	}

	_, _ = retry.Do(context.Background(), "monotonic", plan, func(ctx context.Context) (int, error) {
		return 0, errors.New("nope")
	})

	require.Len(t, delays, 3)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
	}
}

func TestDefaultPlans_Schedules(t *testing.T) {
	listing := retry.ListingPlan()
	assert.Equal(t, 4, listing.MaxAttempts)
	assert.Equal(t, 10*time.Second, listing.Timeout(1))
	assert.Equal(t, 25*time.Second, listing.Timeout(4))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}, retry.Backoffs(listing))

	for _, plan := range []retry.Plan{retry.ListingPlan(), retry.ProfilePlan()} {
		delays := retry.Backoffs(plan)
		for i := 1; i < len(delays); i++ {
			assert.GreaterOrEqual(t, delays[i], delays[i-1])
		}
	}
}

func TestWithTimeout_CancelsAbandonedAttempt(t *testing.T) {
	cancelled := make(chan struct{})
	_, err := retry.WithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})

	assert.ErrorIs(t, err, retry.ErrAttemptTimeout)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("abandoned attempt was not cancelled")
	}
}

func TestWithTimeout_NoDeadline(t *testing.T) {
	res, err := retry.WithTimeout(context.Background(), 0, func(ctx context.Context) (string, error) {
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", res)
}

func TestRace_FirstSettledWinsAndLoserStaysAwaitable(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	slow := retry.Go(ctx, func(ctx context.Context) (string, error) {
		<-release
		return "slow", nil
	})
	timer, stop := retry.After[string](5 * time.Millisecond)
	defer stop()

	idx, val, err := retry.Race(ctx, slow, timer)
	assert.Equal(t, 1, idx)
	assert.ErrorIs(t, err, retry.ErrElapsed)
	assert.Empty(t, val)

	close(release)
	late, err := slow.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "slow", late)
}

func TestRace_RemoteBeatsTimer(t *testing.T) {
	ctx := context.Background()
	fast := retry.Go(ctx, func(ctx context.Context) (string, error) {
		return "fast", nil
	})
	timer, stop := retry.After[string](time.Hour)
	defer stop()

	idx, val, err := retry.Race(ctx, fast, timer)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "fast", val)
}

func TestAfter_NonPositiveNeverSettles(t *testing.T) {
	timer, stop := retry.After[int](0)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := timer.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
