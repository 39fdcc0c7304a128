package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config controls the retry loop.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         time.Duration

	// Sleep waits for the backoff delay between attempts. Tests inject a
	// fake to avoid wall-clock waits. Nil means a context-aware time.After.
	Sleep func(ctx context.Context, d time.Duration) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: Do propagates it immediately without
// consuming further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do invokes fn up to cfg.MaxAttempts times, sleeping an exponentially
// growing delay between attempts. The delay for attempt n is
// min(initial * 2^n, max) plus up to cfg.Jitter of random noise. After the
// budget is exhausted the last error is returned.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	// A non-positive budget still means one attempt; otherwise Do would
	// return a nil-wrapped error without ever calling fn.
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		if err := sleep(ctx, Backoff(cfg, attempt)); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// Backoff returns the delay to wait after the given 1-based attempt.
func Backoff(cfg Config, attempt int) time.Duration {
	backoff := cfg.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
			break
		}
	}
	if cfg.Jitter > 0 {
		backoff += time.Duration(rand.Int63n(int64(cfg.Jitter)))
	}
	return backoff
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
