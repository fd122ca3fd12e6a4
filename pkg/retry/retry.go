package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"github.com/calificaprofe/calificaprofe-api/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ExhaustedError is returned when every attempt of a plan failed.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err is (or wraps) an ExhaustedError
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// Do runs op under plan. Each attempt is bounded by plan.Timeout(attempt); failed attempts
// are followed by plan.Backoff(attempt) before the next one. The payload is returned unmodified.
func Do[T any](ctx context.Context, operation string, plan Plan, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	plan = plan.normalized()

	for attempt := 1; attempt <= plan.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		timeout := plan.Timeout(attempt)
		spanCtx, span := tracing.StartSpan(ctx, "fetch "+operation,
			attribute.Int("retry.attempt", attempt),
			attribute.Int("retry.max_attempts", plan.MaxAttempts),
			attribute.Int64("retry.timeout_ms", timeout.Milliseconds()),
		)

		res, err := WithTimeout(spanCtx, timeout, op)
		tracing.EndSpan(span, err)
		if err == nil {
			metrics.FetchAttempts.WithLabelValues(operation, "success").Inc()
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt))
			}
			return res, nil
		}

		// Caller gave up, not the remote
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		lastErr = err
		outcome := "error"
		if errors.Is(err, ErrAttemptTimeout) {
			outcome = "timeout"
		}
		metrics.FetchAttempts.WithLabelValues(operation, outcome).Inc()

		if plan.Retryable != nil && !plan.Retryable(err) {
			logger.Warn("Non-retryable error encountered",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return zero, err
		}

		if attempt == plan.MaxAttempts {
			break
		}

		delay := plan.Backoff(attempt)
		logger.Warn("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", plan.MaxAttempts),
			zap.Duration("timeout", timeout),
			zap.Duration("delay", delay),
			zap.Error(err))

		if plan.OnRetry != nil {
			plan.OnRetry(attempt, delay, err)
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	metrics.FetchExhausted.WithLabelValues(operation).Inc()
	logger.Error("Operation failed after all attempts",
		zap.String("operation", operation),
		zap.Int("max_attempts", plan.MaxAttempts),
		zap.Error(lastErr))

	return zero, &ExhaustedError{
		Operation: operation,
		Attempts:  plan.MaxAttempts,
		Last:      lastErr,
	}
}

// Backoffs lists the pauses a plan would take between its attempts
func Backoffs(plan Plan) []time.Duration {
	plan = plan.normalized()
	delays := make([]time.Duration, 0, plan.MaxAttempts-1)
	for attempt := 1; attempt < plan.MaxAttempts; attempt++ {
		delays = append(delays, plan.Backoff(attempt))
	}
	return delays
}
