// Package ratelimit provides per-client request limiters for the gateway:
// an in-memory fixed window, a Redis-backed fixed window shared between
// processes, and a token bucket backed by golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"time"
)

// Reference limits.
const (
	DefaultWindow  = 15 * time.Minute
	DefaultAuthMax = 5
	DefaultAPIMax  = 100
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the client regains capacity.
	ResetAt time.Time
}

// RetryAfter returns how long the client should wait before retrying, at
// least one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait.Round(time.Second)
}

// Limiter decides whether the request identified by key may proceed.
//
// Implementations that depend on an external store return a permissive
// Decision together with the error so that callers can fail open.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now    func() time.Time
	prefix string
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, prefix: "ratelimit"}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithKeyPrefix namespaces keys in shared stores. Defaults to "ratelimit".
func WithKeyPrefix(p string) Option {
	return func(o *options) { o.prefix = p }
}
