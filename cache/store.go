// Package cache is the gateway's response cache: a bounded in-process
// store with per-entry TTL and insertion-order eviction, cache-aside
// fetching with coalesced misses, Prometheus collection and cross-instance
// invalidation over NATS.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Reference defaults.
const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 1000
)

// entry is one cached value. insertedAt only orders eviction.
type entry struct {
	key        string
	val        any
	expiresAt  time.Time
	insertedAt time.Time
}

// Store is a bounded in-process TTL cache.
//
// Expired entries are removed lazily when read. When a new key is inserted
// into a full store the oldest inserted entry is evicted, regardless of how
// recently it was read. Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front is the oldest insertion

	hits      uint64
	misses    uint64
	evictions uint64

	ttl          time.Duration
	maxSize      int
	fetchTimeout time.Duration
	now          func() time.Time
	log          *slog.Logger

	flight singleflight.Group

	wmu     sync.Mutex
	waiting map[string]map[*waiter]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the TTL used when Set or GetOrFetch receive ttl <= 0.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMaxSize sets the entry capacity.
func WithMaxSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// WithFetchTimeout bounds how long a single fetch in GetOrFetch may run.
// Zero (the default) means no bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) { s.fetchTimeout = d }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a Store with a 5 minute TTL and room for 1000 entries unless
// overridden by opts.
func New(opts ...Option) *Store {
	s := &Store{
		items:   make(map[string]*list.Element),
		waiting: make(map[string]map[*waiter]struct{}),
		order:   list.New(),
		ttl:     DefaultTTL,
		maxSize: DefaultMaxSize,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Get returns the live value for key. Reading an expired entry removes it
// and counts as a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.lookupLocked(key)
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	return v, ok
}

func (s *Store) lookupLocked(key string) (any, bool) {
	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if !s.now().Before(e.expiresAt) {
		s.removeLocked(el)
		return nil, false
	}
	return e.val, true
}

// Set stores val under key for ttl (ttl <= 0 selects the store default).
// Overwriting keeps the key's eviction position. Inserting a new key into a
// full store evicts the oldest inserted entry first.
func (s *Store) Set(key string, val any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		e := el.Value.(*entry)
		e.val = val
		e.expiresAt = now.Add(ttl)
		return
	}

	for s.order.Len() >= s.maxSize {
		oldest := s.order.Front()
		s.log.Debug("cache evict", "key", oldest.Value.(*entry).key)
		s.removeLocked(oldest)
		s.evictions++
	}
	e := &entry{key: key, val: val, expiresAt: now.Add(ttl), insertedAt: now}
	s.items[key] = s.order.PushBack(e)
}

// Delete removes key and reports whether an entry was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeLocked(el)
	return true
}

// Clear drops every entry and resets the hit and miss counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.order.Init()
	s.hits, s.misses = 0, 0
}

// Len returns the number of stored entries, expired ones included until
// they are read or purged.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Purge removes every expired entry and returns how many were dropped.
func (s *Store) Purge() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*entry).expiresAt) {
			s.removeLocked(el)
			n++
		}
		el = next
	}
	return n
}

// RunJanitor purges expired entries every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Purge(); n > 0 {
				s.log.Debug("cache purge", "removed", n)
			}
		}
	}
}

// Invalidate deletes keys from this store. It satisfies Invalidator.
func (s *Store) Invalidate(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.Delete(k)
	}
	return nil
}

func (s *Store) removeLocked(el *list.Element) {
	delete(s.items, el.Value.(*entry).key)
	s.order.Remove(el)
}

// Stats is a point-in-time snapshot of the store counters.
type Stats struct {
	HitCount  uint64 `json:"hitCount"`
	MissCount uint64 `json:"missCount"`
	HitRate   string `json:"hitRate"`
	Size      int    `json:"size"`
	MaxSize   int    `json:"maxSize"`
}

// Stats returns the counters. HitRate is a percentage with two decimals,
// or "0%" before the first lookup.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		HitCount:  s.hits,
		MissCount: s.misses,
		HitRate:   hitRate(s.hits, s.misses),
		Size:      s.order.Len(),
		MaxSize:   s.maxSize,
	}
}

func (s *Store) evictionCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

func hitRate(hits, misses uint64) string {
	total := hits + misses
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(hits)/float64(total)*100)
}
