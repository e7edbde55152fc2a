// Package retry provides a generic retry helper with exponential backoff and
// jitter. The gateway wraps its upstream catalog calls with it; gRPC clients
// can use it with [Codes].
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay. Zero leaves it uncapped.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// Retryable decides whether an error is worth another attempt. When nil
	// every error is retried except context errors and errors wrapped with
	// [Permanent].
	Retryable func(error) bool
}

// Default is the policy used for upstream calls: three attempts starting
// at 100ms, capped at 2s, with 20 % jitter.
var Default = Config{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    2 * time.Second,
	Jitter:      0.2,
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not retryable. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Codes returns a Retryable that accepts gRPC status errors carrying one of
// cs.
func Codes(cs ...codes.Code) func(error) bool {
	return func(err error) bool {
		st, ok := status.FromError(err)
		return ok && slices.Contains(cs, st.Code())
	}
}

func (cfg Config) retryable(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	if cfg.Retryable != nil {
		return cfg.Retryable(err)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// delay is the pause after the given (0-indexed) failed attempt.
func (cfg Config) delay(attempt int) time.Duration {
	d := cfg.BaseDelay << min(attempt, 30)
	if d < 0 || (cfg.MaxDelay > 0 && d > cfg.MaxDelay) {
		d = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		d += time.Duration(float64(d) * cfg.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

// Do calls fn up to cfg.MaxAttempts times, retrying while the returned
// error is retryable. Between attempts an exponential back-off delay (with
// optional jitter) is applied.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if i == attempts-1 || !cfg.retryable(err) {
			var p *permanentError
			if errors.As(err, &p) {
				return zero, p.err
			}
			return zero, err
		}

		timer := time.NewTimer(cfg.delay(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, nil
}
