// Package breaker provides a small circuit breaker. The gateway puts one in
// front of every upstream catalog service so that a failing upstream is
// skipped, and the fallback served, instead of being called on every request.
//
// A Closed breaker lets calls through and counts consecutive failures. After
// FailureThreshold of them it opens and rejects calls with [ErrOpen] for
// OpenTimeout. It then turns HalfOpen and admits up to HalfOpenMaxSuccess
// probe calls at a time: enough successes close it, one failure reopens it.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("breaker: circuit open")

// State is the position of a Breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// closed breaker.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of probe successes that closes the
	// breaker again. It also bounds the probes in flight.
	HalfOpenMaxSuccess int

	// OnStateChange, when set, is called after every transition. It runs
	// with the breaker locked and must not call back into it.
	OnStateChange func(from, to State)
}

// Default trips after five consecutive failures and probes again after
// thirty seconds.
var Default = Config{
	FailureThreshold:   5,
	OpenTimeout:        30 * time.Second,
	HalfOpenMaxSuccess: 1,
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

// New creates a closed Breaker.
func New(cfg Config) *Breaker {
	cfg.FailureThreshold = max(cfg.FailureThreshold, 1)
	cfg.HalfOpenMaxSuccess = max(cfg.HalfOpenMaxSuccess, 1)
	return &Breaker{cfg: cfg, now: time.Now}
}

// State returns the current state, moving an expired Open breaker to
// HalfOpen first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	return b.state
}

// Execute runs fn when the breaker admits the call and records the outcome.
// countable reports whether an error counts as a failure; nil counts every
// error. Uncounted errors are treated as successes.
func (b *Breaker) Execute(fn func() error, countable func(error) bool) error {
	probe, ok := b.admit()
	if !ok {
		return ErrOpen
	}
	err := fn()
	b.settle(probe, err == nil || (countable != nil && !countable(err)))
	return err
}

func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	switch b.state {
	case Closed:
		return false, true
	case HalfOpen:
		if b.successes+b.probes >= b.cfg.HalfOpenMaxSuccess {
			return true, false
		}
		b.probes++
		return true, true
	}
	return false, false
}

func (b *Breaker) settle(probe, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe && b.probes > 0 {
		b.probes--
	}

	switch {
	case b.state == Closed && success:
		b.failures = 0
	case b.state == Closed:
		if b.failures++; b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case b.state == HalfOpen && !probe:
		// A call admitted while closed finished after the breaker moved on.
	case b.state == HalfOpen && success:
		if b.successes++; b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.failures, b.successes = 0, 0
			b.transition(Closed)
		}
	case b.state == HalfOpen:
		b.trip()
	}
}

// expire must be called with mu held.
func (b *Breaker) expire() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.successes, b.probes = 0, 0
		b.transition(HalfOpen)
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.successes = 0
	b.transition(Open)
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
