package ratelimit_test

import (
	"testing"
	"time"

	"github.com/Keksclan/goRawrGate/policy"
	"github.com/Keksclan/goRawrGate/ratelimit"
)

func TestGroups_PerGroupLimits(t *testing.T) {
	clk := newClock()
	r := policy.NewResolver(policy.Defaults(policy.DefaultSensitivePrefixes)...)
	g := ratelimit.NewGroups(r, nil, ratelimit.InMemory(ratelimit.WithClock(clk.Now)))
	ctx := t.Context()

	for i := range 5 {
		d, applied, _ := g.Allow(ctx, "/auth/login", "10.0.0.1")
		if !applied || !d.Allowed {
			t.Fatalf("login %d should be allowed", i+1)
		}
	}
	if d, _, _ := g.Allow(ctx, "/auth/login", "10.0.0.1"); d.Allowed {
		t.Fatal("6th login should be rejected")
	}

	// The API group counts separately.
	if d, _, _ := g.Allow(ctx, "/products", "10.0.0.1"); !d.Allowed || d.Limit != 100 {
		t.Fatalf("api request: %+v", d)
	}
}

func TestGroups_SensitivePrefixesShareTheAPIBudget(t *testing.T) {
	clk := newClock()
	api := policy.RateLimitRule{Max: 3, Window: time.Minute}
	r := policy.NewResolver(policy.DefaultsWith(policy.AuthRateLimit, api, policy.DefaultSensitivePrefixes)...)
	g := ratelimit.NewGroups(r, nil, ratelimit.InMemory(ratelimit.WithClock(clk.Now)))
	ctx := t.Context()

	for _, target := range []string{"/products", "/admin/cache/stats", "/protected/profile"} {
		if d, _, _ := g.Allow(ctx, target, "10.0.0.1"); !d.Allowed {
			t.Fatalf("%s should be allowed", target)
		}
	}
	for _, target := range []string{"/products", "/admin/cache/stats", "/protected/profile"} {
		if d, _, _ := g.Allow(ctx, target, "10.0.0.1"); d.Allowed {
			t.Fatalf("%s passed after the shared budget was spent", target)
		}
	}
	if d, _, _ := g.Allow(ctx, "/auth/login", "10.0.0.1"); !d.Allowed {
		t.Fatal("auth limiter must stay separate")
	}
	if d, _, _ := g.Allow(ctx, "/products", "10.0.0.2"); !d.Allowed {
		t.Fatal("another client has its own budget")
	}
}

func TestGroups_GlobalFallback(t *testing.T) {
	r := policy.NewResolver(policy.Group("open").Exact("/health").Policy(policy.Policy{}))
	global := ratelimit.NewFixedWindow(1, time.Minute)
	g := ratelimit.NewGroups(r, global, nil)
	ctx := t.Context()

	if d, applied, _ := g.Allow(ctx, "/health", "c"); !applied || !d.Allowed {
		t.Fatal("first request should use the global limiter and pass")
	}
	if d, _, _ := g.Allow(ctx, "/health", "c"); d.Allowed {
		t.Fatal("second request should hit the global limit")
	}
}

func TestGroups_NoLimiter(t *testing.T) {
	g := ratelimit.NewGroups(nil, nil, nil)
	d, applied, err := g.Allow(t.Context(), "/anything", "c")
	if err != nil || applied || !d.Allowed {
		t.Fatalf("got %+v applied=%v err=%v", d, applied, err)
	}
}
