package catalog

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"
)

// Memory is a process-local Repository. IDs are sequential decimal
// strings. Records are stored as deep copies and handed out as deep copies,
// so callers never share state with the store. Memory is safe for
// concurrent use.
type Memory[E any, PT ptr[E]] struct {
	kind Kind
	now  func() time.Time

	mu     sync.RWMutex
	items  map[string]E
	order  []string
	nextID int
}

// MemoryOption configures a Memory.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	now func() time.Time
}

// WithMemoryClock replaces the wall clock, for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) { c.now = now }
}

// NewMemory creates an empty store for records of kind k.
func NewMemory[E any, PT ptr[E]](k Kind, opts ...MemoryOption) *Memory[E, PT] {
	cfg := memoryConfig{now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	return &Memory[E, PT]{
		kind:   k,
		now:    cfg.now,
		items:  make(map[string]E),
		nextID: 1,
	}
}

// Seed inserts vs as if created now, skipping invalid records.
func (m *Memory[E, PT]) Seed(vs ...PT) *Memory[E, PT] {
	for _, v := range vs {
		_, _ = m.Create(context.Background(), v)
	}
	return m
}

// List returns every record in insertion order.
func (m *Memory[E, PT]) List(_ context.Context) ([]PT, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PT, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.copyOf(m.items[id]))
	}
	return out, nil
}

// Get returns the record with id.
func (m *Memory[E, PT]) Get(_ context.Context, id string) (PT, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[id]
	if !ok {
		return nil, notFound(m.kind, id)
	}
	return m.copyOf(v), nil
}

// Create validates v, assigns the next ID and stores a copy.
func (m *Memory[E, PT]) Create(_ context.Context, v PT) (PT, error) {
	if err := prepare(v); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta := v.Base()
	meta.ID = strconv.Itoa(m.nextID)
	meta.CreatedAt = m.now().UTC()
	meta.UpdatedAt = nil
	m.nextID++

	m.items[meta.ID] = *detach(v)
	m.order = append(m.order, meta.ID)
	return m.copyOf(m.items[meta.ID]), nil
}

// Update replaces the record with id by v, keeping its creation time.
func (m *Memory[E, PT]) Update(_ context.Context, id string, v PT) (PT, error) {
	if err := prepare(v); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.items[id]
	if !ok {
		return nil, notFound(m.kind, id)
	}
	now := m.now().UTC()
	meta := v.Base()
	meta.ID = id
	meta.CreatedAt = PT(&old).Base().CreatedAt
	meta.UpdatedAt = &now

	m.items[id] = *detach(v)
	return m.copyOf(m.items[id]), nil
}

// Delete removes the record with id.
func (m *Memory[E, PT]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return notFound(m.kind, id)
	}
	delete(m.items, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	return nil
}

// Len returns the number of stored records.
func (m *Memory[E, PT]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory[E, PT]) copyOf(v E) PT { return detach(PT(&v)) }

// detach returns a deep copy of v: slices of records implementing clone and
// the UpdatedAt pointer are duplicated.
func detach[E any, PT ptr[E]](v PT) PT {
	var out E
	if c, ok := any(v).(interface{ clone() E }); ok {
		out = c.clone()
	} else {
		out = *v
	}
	meta := PT(&out).Base()
	if meta.UpdatedAt != nil {
		t := *meta.UpdatedAt
		meta.UpdatedAt = &t
	}
	return PT(&out)
}
