package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Defaults for the ring buffer and for Recent.
const (
	DefaultCapacity    = 1000
	DefaultRecentLimit = 50
)

// Sink receives every recorded event. Publish must not block for long; it
// runs on the request path.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Log is a bounded, append-only ring of security events. Once full, each new
// event overwrites the oldest one. Log is safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	ring []Event
	next int // slot the next event is written to
	size int

	capacity int
	now      func() time.Time
	log      *slog.Logger
	events   *prometheus.CounterVec
	sinks    []Sink

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity sets the number of events retained.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithLogger sets the logger events are mirrored to.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Log) { l.log = lg }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithSink forwards every event to s.
func WithSink(s Sink) Option {
	return func(l *Log) { l.sinks = append(l.sinks, s) }
}

// WithRegisterer registers the gate_security_events_total counter on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(l *Log) { r.MustRegister(l.events) }
}

// New creates a Log holding up to DefaultCapacity events unless overridden.
func New(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		now:      time.Now,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_security_events_total",
			Help: "Security events recorded by the gateway, by type.",
		}, []string{"type"}),
		subs: make(map[chan Event]struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	l.ring = make([]Event, l.capacity)
	return l
}

// Record appends an event of type t and returns it. It never blocks on
// slow subscribers and never fails; sink errors are logged.
func (l *Log) Record(ctx context.Context, t EventType, d Details) Event {
	e := Event{
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC(),
		Type:      t,
		Details:   d,
	}

	l.mu.Lock()
	l.ring[l.next] = e
	l.next = (l.next + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
	l.mu.Unlock()

	l.events.WithLabelValues(string(t)).Inc()
	l.log.Log(ctx, t.level(), "security event", append([]any{"type", string(t)}, d.attrs()...)...)

	for _, s := range l.sinks {
		if err := s.Publish(ctx, e); err != nil {
			l.log.Warn("audit sink publish failed", "type", string(t), "err", err)
		}
	}
	l.broadcast(e)
	return e
}

// Recent returns up to limit events, most recent first. A limit <= 0
// selects DefaultRecentLimit.
func (l *Log) Recent(limit int) []Event {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := min(limit, l.size)
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, l.ring[(l.next-i+l.capacity)%l.capacity])
	}
	return out
}

// Stats summarises the retained events.
type Stats struct {
	TotalEvents int               `json:"totalEvents"`
	EventTypes  map[EventType]int `json:"eventTypes"`
}

// Stats counts the events currently held in the ring, by type.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{TotalEvents: l.size, EventTypes: make(map[EventType]int)}
	for i := 1; i <= l.size; i++ {
		st.EventTypes[l.ring[(l.next-i+l.capacity)%l.capacity].Type]++
	}
	return st
}

// Subscribe returns a channel receiving every event recorded from now on
// and a function that ends the subscription. Events are dropped for a
// subscriber whose buffer is full.
func (l *Log) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	l.subsMu.Lock()
	l.subs[ch] = struct{}{}
	l.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subsMu.Lock()
			delete(l.subs, ch)
			l.subsMu.Unlock()
			close(ch)
		})
	}
}

func (l *Log) broadcast(e Event) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	for ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
