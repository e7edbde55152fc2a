package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket keeps one golang.org/x/time/rate limiter per key. It smooths
// bursts instead of resetting at window boundaries.
type TokenBucket struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	lastSweep time.Time
}

// sweepEvery bounds how often idle buckets are dropped.
const sweepEvery = time.Minute

// NewTokenBucket permits rps requests per second per key with the given
// burst.
func NewTokenBucket(rps float64, burst int, opts ...Option) *TokenBucket {
	o := buildOptions(opts)
	return &TokenBucket{
		limit:     rate.Limit(rps),
		burst:     burst,
		now:       o.now,
		buckets:   make(map[string]*rate.Limiter),
		lastSweep: o.now(),
	}
}

// PerWindow converts "limit requests per window" into a token bucket with
// the same long-run rate and a burst of limit.
func PerWindow(limit int, w time.Duration, opts ...Option) *TokenBucket {
	return NewTokenBucket(float64(limit)/w.Seconds(), limit, opts...)
}

// Allow implements Limiter. It never returns an error.
func (b *TokenBucket) Allow(_ context.Context, key string) (Decision, error) {
	now := b.now()
	lim := b.bucket(key, now)

	ok := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)

	d := Decision{
		Allowed:   ok,
		Limit:     b.burst,
		Remaining: max(0, int(tokens)),
		ResetAt:   now,
	}
	if tokens < 1 && b.limit > 0 {
		need := 1 - tokens
		d.ResetAt = now.Add(time.Duration(need / float64(b.limit) * float64(time.Second)))
	}
	return d, nil
}

func (b *TokenBucket) bucket(key string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) >= sweepEvery {
		for k, l := range b.buckets {
			// A full bucket behaves exactly like a fresh one.
			if l.TokensAt(now) >= float64(b.burst) {
				delete(b.buckets, k)
			}
		}
		b.lastSweep = now
	}

	lim, ok := b.buckets[key]
	if !ok {
		lim = rate.NewLimiter(b.limit, b.burst)
		b.buckets[key] = lim
	}
	return lim
}
