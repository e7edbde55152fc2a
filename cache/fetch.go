package cache

import (
	"context"
	"fmt"
	"time"
)

// FetchFunc loads the value for a missing key from the slow path.
type FetchFunc func(ctx context.Context) (any, error)

// GetOrFetch returns the cached value for key, or calls fetch on a miss and
// caches its result for ttl (ttl <= 0 selects the store default).
//
// Concurrent misses for the same key share one call to fetch. The shared
// fetch runs detached from the cancellation of the caller that started it,
// bounded only by the fetch timeout, so one aborted caller never fails the
// others. Errors from fetch are returned unchanged and never cached. The
// result is stored unless every caller waiting for it is done by the time
// fetch returns. A waiting caller whose own context ends returns ctx.Err()
// without waiting for the shared fetch.
func (s *Store) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (any, error) {
	if v, ok := s.Get(key); ok {
		s.log.Debug("cache hit", "key", key)
		return v, nil
	}
	s.log.Debug("cache miss", "key", key)

	w := s.wait(ctx, key)
	defer s.leave(key, w)

	ch := s.flight.DoChan(key, func() (any, error) {
		// A previous flight may have filled the key after our miss.
		s.mu.Lock()
		v, ok := s.lookupLocked(key)
		s.mu.Unlock()
		if ok {
			return v, nil
		}

		fctx := context.WithoutCancel(ctx)
		if s.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, s.fetchTimeout)
			defer cancel()
		}

		v, err := fetch(fctx)
		if err != nil {
			s.log.Warn("cache fetch failed", "key", key, "err", err)
			return nil, err
		}
		if s.anyLive(key) {
			s.Set(key, v, ttl)
		} else {
			s.log.Debug("cache fetch abandoned", "key", key)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// waiter is one caller of GetOrFetch blocked on a shared fetch.
type waiter struct{ ctx context.Context }

func (s *Store) wait(ctx context.Context, key string) *waiter {
	w := &waiter{ctx: ctx}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	ws := s.waiting[key]
	if ws == nil {
		ws = make(map[*waiter]struct{})
		s.waiting[key] = ws
	}
	ws[w] = struct{}{}
	return w
}

func (s *Store) leave(key string, w *waiter) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	delete(s.waiting[key], w)
	if len(s.waiting[key]) == 0 {
		delete(s.waiting, key)
	}
}

// anyLive reports whether a caller waiting on key still has a live context.
func (s *Store) anyLive(key string) bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for w := range s.waiting[key] {
		if w.ctx.Err() == nil {
			return true
		}
	}
	return false
}

// Fetch is the typed form of GetOrFetch. A cached value of another type
// than T is reported as an error.
func Fetch[T any](ctx context.Context, s *Store, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := s.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: value for %q is %T, want %T", key, v, zero)
	}
	return t, nil
}
