package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// FixedWindow counts requests per key in fixed windows. Every request
// increments the count, rejected ones included; a request is allowed while
// the count stays at or below max. A key's window restarts on the first
// request after the previous window has elapsed.
type FixedWindow struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

// NewFixedWindow allows limit requests per key in every window.
func NewFixedWindow(limit int, w time.Duration, opts ...Option) *FixedWindow {
	o := buildOptions(opts)
	return &FixedWindow{
		max:       limit,
		window:    w,
		now:       o.now,
		windows:   make(map[string]*window),
		lastSweep: o.now(),
	}
}

// Allow implements Limiter. It never returns an error.
func (f *FixedWindow) Allow(_ context.Context, key string) (Decision, error) {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if now.Sub(f.lastSweep) >= f.window {
		f.sweepLocked(now)
	}

	w, ok := f.windows[key]
	if !ok || !now.Before(w.start.Add(f.window)) {
		w = &window{start: now}
		f.windows[key] = w
	}
	w.count++

	return Decision{
		Allowed:   w.count <= f.max,
		Limit:     f.max,
		Remaining: max(0, f.max-w.count),
		ResetAt:   w.start.Add(f.window),
	}, nil
}

// Len returns the number of tracked keys.
func (f *FixedWindow) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

func (f *FixedWindow) sweepLocked(now time.Time) {
	for k, w := range f.windows {
		if !now.Before(w.start.Add(f.window)) {
			delete(f.windows, k)
		}
	}
	f.lastSweep = now
}
