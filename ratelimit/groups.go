package ratelimit

import (
	"cmp"
	"context"
	"sync"
	"time"

	"github.com/Keksclan/goRawrGate/policy"
)

// Factory builds the limiter that enforces one policy group's rule.
type Factory func(limit int, window time.Duration) Limiter

// InMemory is the default Factory: a process-local FixedWindow.
func InMemory(opts ...Option) Factory {
	return func(limit int, w time.Duration) Limiter {
		return NewFixedWindow(limit, w, opts...)
	}
}

// Groups resolves a request target to its policy group and applies the
// limiter of that group's rule scope, created lazily on first use. Targets
// without a rate limit rule fall back to the global limiter, if any.
type Groups struct {
	resolver *policy.Resolver
	global   Limiter
	factory  Factory

	mu     sync.Mutex
	groups map[string]Limiter
}

// NewGroups creates a Groups. resolver and global may be nil; a nil
// factory selects InMemory().
func NewGroups(resolver *policy.Resolver, global Limiter, factory Factory) *Groups {
	if factory == nil {
		factory = InMemory()
	}
	return &Groups{
		resolver: resolver,
		global:   global,
		factory:  factory,
		groups:   make(map[string]Limiter),
	}
}

// Allow counts one request from client against target. applied is false
// when no limiter covers target.
func (g *Groups) Allow(ctx context.Context, target, client string) (d Decision, applied bool, err error) {
	l, scope := g.limiterFor(target)
	if l == nil {
		return Decision{Allowed: true}, false, nil
	}
	d, err = l.Allow(ctx, scope+":"+client)
	return d, true, err
}

func (g *Groups) limiterFor(target string) (Limiter, string) {
	if g.resolver != nil {
		if name, pol, ok := g.resolver.Resolve(target); ok && pol != nil && pol.RateLimit != nil {
			scope := cmp.Or(pol.RateLimit.Scope, name)
			return g.groupLimiter(scope, pol.RateLimit), scope
		}
	}
	return g.global, "global"
}

// groupLimiter returns the limiter for scope. The first rule seen for a
// scope fixes its limit and window.
func (g *Groups) groupLimiter(scope string, rl *policy.RateLimitRule) Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.groups[scope]; ok {
		return l
	}
	l := g.factory(rl.Max, rl.Window)
	g.groups[scope] = l
	return l
}
