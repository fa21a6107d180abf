// Package retry runs an operation against an external system with a fixed
// backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
)

// Policy controls how many extra attempts follow a failed one and how long to
// wait in between. The backoff is fixed, not exponential.
type Policy struct {
	Retries int
	Backoff time.Duration
}

// DefaultPolicy is one extra attempt after a one second pause.
func DefaultPolicy() Policy {
	return Policy{Retries: 1, Backoff: time.Second}
}

// Attempts returns the total number of calls Do makes before giving up.
func (p Policy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

type stopError struct {
	err error
}

func (s *stopError) Error() string { return s.err.Error() }
func (s *stopError) Unwrap() error { return s.err }

// Stop marks err as not worth retrying. Do returns it after the first attempt.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// OnRetry is called before each extra attempt with the attempt number (1-based
// count of retries so far) and the error that caused it.
type OnRetry func(attempt int, err error)

// Do calls fn until it succeeds, returns a Stop error, ctx is done, or the
// policy is exhausted. Failed attempts are classified transient; the error
// returned after exhaustion is classified permanent and wraps the last cause.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error, onRetry OnRetry) error {
	attempts := p.Attempts()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, lastErr)
			}
			if err := sleep(ctx, p.Backoff); err != nil {
				return apperrors.Permanent(op, fmt.Errorf("retry interrupted: %w", err))
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var stop *stopError
		if errors.As(err, &stop) {
			if apperrors.KindOf(stop.err) != apperrors.KindUnknown {
				return stop.err
			}
			return apperrors.Permanent(op, stop.err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.Permanent(op, fmt.Errorf("%w: %w", ctxErr, err))
		}
		lastErr = apperrors.E(apperrors.KindTransient, op, err)
	}
	return apperrors.Permanent(op, fmt.Errorf("exhausted %d attempts: %w", attempts, lastErr))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
