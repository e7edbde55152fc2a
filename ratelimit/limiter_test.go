package ratelimit_test

import (
	"sync"
	"testing"
	"time"

	"github.com/Keksclan/goRawrGate/ratelimit"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Unix(1_700_000_000, 0)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestFixedWindow_RejectsNPlusOne(t *testing.T) {
	clk := newClock()
	l := ratelimit.NewFixedWindow(5, 15*time.Minute, ratelimit.WithClock(clk.Now))
	ctx := t.Context()

	for i := range 5 {
		d, _ := l.Allow(ctx, "X")
		if !d.Allowed {
			t.Fatalf("request %d from X should be allowed", i+1)
		}
		if d.Remaining != 4-i {
			t.Fatalf("request %d: remaining = %d, want %d", i+1, d.Remaining, 4-i)
		}
	}

	d, _ := l.Allow(ctx, "X")
	if d.Allowed {
		t.Fatal("6th request from X should be rejected")
	}

	d, _ = l.Allow(ctx, "Y")
	if !d.Allowed {
		t.Fatal("first request from Y should be allowed")
	}
}

func TestFixedWindow_ResetsAfterWindow(t *testing.T) {
	clk := newClock()
	l := ratelimit.NewFixedWindow(1, time.Minute, ratelimit.WithClock(clk.Now))
	ctx := t.Context()

	first, _ := l.Allow(ctx, "k")
	if !first.Allowed {
		t.Fatal("first request should be allowed")
	}
	if d, _ := l.Allow(ctx, "k"); d.Allowed {
		t.Fatal("second request in window should be rejected")
	}
	if !first.ResetAt.Equal(clk.Now().Add(time.Minute)) {
		t.Fatalf("reset at %v, want window end", first.ResetAt)
	}

	clk.Advance(time.Minute)
	if d, _ := l.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("request after the window should be allowed")
	}
}

func TestFixedWindow_RejectedRequestsStillCount(t *testing.T) {
	clk := newClock()
	l := ratelimit.NewFixedWindow(2, time.Minute, ratelimit.WithClock(clk.Now))
	ctx := t.Context()

	for range 5 {
		_, _ = l.Allow(ctx, "k")
	}
	clk.Advance(30 * time.Second)
	if d, _ := l.Allow(ctx, "k"); d.Allowed {
		t.Fatal("window has not elapsed yet")
	}
}

func TestFixedWindow_SweepsIdleKeys(t *testing.T) {
	clk := newClock()
	l := ratelimit.NewFixedWindow(1, time.Minute, ratelimit.WithClock(clk.Now))
	ctx := t.Context()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	clk.Advance(2 * time.Minute)
	_, _ = l.Allow(ctx, "c")

	if n := l.Len(); n != 1 {
		t.Fatalf("tracked keys = %d, want 1", n)
	}
}

func TestTokenBucket_AllowUnderBurst(t *testing.T) {
	clk := newClock()
	l := ratelimit.NewTokenBucket(1, 5, ratelimit.WithClock(clk.Now))
	for i := range 5 {
		if d, _ := l.Allow(t.Context(), "k"); !d.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
}

func TestTokenBucket_BlocksWhenBurstExhausted(t *testing.T) {
	clk := newClock()
	l := ratelimit.NewTokenBucket(0.5, 2, ratelimit.WithClock(clk.Now))
	ctx := t.Context()

	_, _ = l.Allow(ctx, "k")
	_, _ = l.Allow(ctx, "k")

	d, _ := l.Allow(ctx, "k")
	if d.Allowed {
		t.Fatal("expected rejection after burst exhausted")
	}
	if wait := d.ResetAt.Sub(clk.Now()); wait <= 0 || wait > 2*time.Second {
		t.Fatalf("reset in %v, want within 2s", wait)
	}

	// Other keys have their own bucket.
	if d, _ := l.Allow(ctx, "other"); !d.Allowed {
		t.Fatal("expected independent bucket per key")
	}

	clk.Advance(2 * time.Second)
	if d, _ := l.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("expected a token after refill")
	}
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Unix(100, 0)
	d := ratelimit.Decision{ResetAt: now.Add(1500 * time.Millisecond)}
	if got := d.RetryAfter(now); got != 2*time.Second {
		t.Fatalf("got %v, want 2s", got)
	}
	d.ResetAt = now
	if got := d.RetryAfter(now); got != time.Second {
		t.Fatalf("got %v, want 1s minimum", got)
	}
}
