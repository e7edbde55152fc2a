package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Keksclan/goRawrGate/security"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRecent_MostRecentFirst(t *testing.T) {
	l := New(WithLogger(quietLogger()))
	ctx := t.Context()
	for i := range 3 {
		l.Record(ctx, RateLimitExceeded, Details{Path: fmt.Sprintf("/p%d", i)})
	}

	got := l.Recent(2)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Details.Path != "/p2" || got[1].Details.Path != "/p1" {
		t.Fatalf("got %s, %s; want /p2, /p1", got[0].Details.Path, got[1].Details.Path)
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Fatal("expected id and timestamp to be set")
	}
}

func TestRecent_LimitLargerThanLog(t *testing.T) {
	l := New(WithLogger(quietLogger()))
	l.Record(t.Context(), IPBlocked, Details{})
	if got := l.Recent(100); len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
}

func TestRecent_DefaultLimit(t *testing.T) {
	l := New(WithLogger(quietLogger()))
	for range DefaultRecentLimit + 10 {
		l.Record(t.Context(), AuthenticatedRequest, Details{})
	}
	if got := l.Recent(0); len(got) != DefaultRecentLimit {
		t.Fatalf("got %d events, want %d", len(got), DefaultRecentLimit)
	}
}

func TestRing_DropsOldest(t *testing.T) {
	l := New(WithCapacity(3), WithLogger(quietLogger()))
	ctx := t.Context()
	for i := range 5 {
		l.Record(ctx, UnauthorizedAccess, Details{Path: fmt.Sprintf("/%d", i)})
	}

	got := l.Recent(10)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	for i, want := range []string{"/4", "/3", "/2"} {
		if got[i].Details.Path != want {
			t.Fatalf("event %d: got %s, want %s", i, got[i].Details.Path, want)
		}
	}
}

func TestStats_CountsRetainedEvents(t *testing.T) {
	l := New(WithCapacity(4), WithLogger(quietLogger()))
	ctx := t.Context()
	l.Record(ctx, RateLimitExceeded, Details{})
	l.Record(ctx, RateLimitExceeded, Details{})
	l.Record(ctx, InsufficientPrivileges, Details{})

	st := l.Stats()
	if st.TotalEvents != 3 {
		t.Fatalf("total = %d, want 3", st.TotalEvents)
	}
	if st.EventTypes[RateLimitExceeded] != 2 || st.EventTypes[InsufficientPrivileges] != 1 {
		t.Fatalf("types = %v", st.EventTypes)
	}

	for range 4 {
		l.Record(ctx, AuthenticatedRequest, Details{})
	}
	st = l.Stats()
	if st.TotalEvents != 4 || st.EventTypes[AuthenticatedRequest] != 4 || st.EventTypes[RateLimitExceeded] != 0 {
		t.Fatalf("after wrap: %+v", st)
	}
}

func TestRecord_MirrorsToSlog(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	l.Record(t.Context(), InsufficientPrivileges, Details{
		IP:            "10.0.0.1",
		User:          "alice",
		Roles:         security.Roles(security.RoleUser),
		RequiredRoles: security.Roles(security.RoleAdmin),
	})

	out := buf.String()
	for _, want := range []string{"level=WARN", "type=INSUFFICIENT_PRIVILEGES", "user=alice", "required_roles=admin"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %q", out, want)
		}
	}
}

func TestRecord_CountsInPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := New(WithRegisterer(reg), WithLogger(quietLogger()))
	l.Record(t.Context(), RateLimitExceeded, Details{})
	l.Record(t.Context(), RateLimitExceeded, Details{})

	if got := testutil.ToFloat64(l.events.WithLabelValues(string(RateLimitExceeded))); got != 2 {
		t.Fatalf("counter = %v, want 2", got)
	}
	if n, err := testutil.GatherAndCount(reg, "gate_security_events_total"); err != nil || n != 1 {
		t.Fatalf("gathered %d series, err %v", n, err)
	}
}

type recordingSink struct {
	got []Event
	err error
}

func (s *recordingSink) Publish(_ context.Context, e Event) error {
	s.got = append(s.got, e)
	return s.err
}

func TestRecord_ForwardsToSinks(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("broker down")}
	l := New(WithSink(ok), WithSink(failing), WithLogger(quietLogger()))

	e := l.Record(t.Context(), InvalidToken, Details{})
	if len(ok.got) != 1 || ok.got[0].ID != e.ID {
		t.Fatalf("sink got %v", ok.got)
	}
	if len(failing.got) != 1 {
		t.Fatal("failing sink should still be called")
	}
	if l.Stats().TotalEvents != 1 {
		t.Fatal("sink failure must not drop the event")
	}
}

func TestSubscribe(t *testing.T) {
	l := New(WithLogger(quietLogger()))
	ch, cancel := l.Subscribe(1)

	l.Record(t.Context(), IPBlocked, Details{IP: "1.2.3.4"})
	// Buffer is full: this one is dropped for the subscriber, not blocked on.
	l.Record(t.Context(), IPBlocked, Details{IP: "5.6.7.8"})

	e := <-ch
	if e.Details.IP != "1.2.3.4" {
		t.Fatalf("got %s", e.Details.IP)
	}

	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after cancel")
	}
	l.Record(t.Context(), IPBlocked, Details{})
}
