package policy

import (
	"testing"
	"time"

	"github.com/Keksclan/goRawrGate/security"
)

func TestResolve_ExactMatch(t *testing.T) {
	r := NewResolver(
		Group("admin").
			Exact("/admin/cache").
			Policy(Policy{AuthRequired: true}),
	)

	name, pol, ok := r.Resolve("/admin/cache")
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "admin" {
		t.Fatalf("got group %q, want %q", name, "admin")
	}
	if !pol.AuthRequired {
		t.Fatal("expected AuthRequired to be true")
	}
}

func TestResolve_PrefixMatch(t *testing.T) {
	r := NewResolver(
		Group("public").
			Prefix("/products").
			Policy(Policy{Timeout: 5 * time.Second}),
	)

	name, pol, ok := r.Resolve("/products/42")
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "public" {
		t.Fatalf("got group %q, want %q", name, "public")
	}
	if pol.Timeout != 5*time.Second {
		t.Fatalf("got timeout %v, want %v", pol.Timeout, 5*time.Second)
	}
}

func TestResolve_RegexMatch(t *testing.T) {
	r := NewResolver(
		Group("items").
			Regex(`^/(products|clients)/[0-9a-f-]+$`).
			Policy(Policy{}),
	)

	if _, _, ok := r.Resolve("/clients/7"); !ok {
		t.Fatal("expected a regex match")
	}
}

func TestResolve_NoMatch(t *testing.T) {
	r := NewResolver(
		Group("admin").Exact("/admin/cache").Policy(Policy{}),
	)

	if _, _, ok := r.Resolve("/orders"); ok {
		t.Fatal("expected no match")
	}
}

func TestResolve_ExactBeatsPrefix(t *testing.T) {
	r := NewResolver(
		Group("prefix-group").
			Prefix("/auth/").
			Policy(Policy{Timeout: 1 * time.Second}),
		Group("exact-group").
			Exact("/auth/login").
			Policy(Policy{Timeout: 2 * time.Second}),
	)

	name, pol, ok := r.Resolve("/auth/login")
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "exact-group" {
		t.Fatalf("exact should beat prefix: got %q", name)
	}
	if pol.Timeout != 2*time.Second {
		t.Fatalf("got timeout %v, want %v", pol.Timeout, 2*time.Second)
	}
}

func TestResolve_PrefixBeatsRegex(t *testing.T) {
	r := NewResolver(
		Group("regex-group").
			Regex(`^/orders`).
			Policy(Policy{}),
		Group("prefix-group").
			Prefix("/orders").
			Policy(Policy{}),
	)

	name, _, ok := r.Resolve("/orders/1")
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "prefix-group" {
		t.Fatalf("prefix should beat regex: got %q", name)
	}
}

func TestResolve_LongerPrefixWins(t *testing.T) {
	r := NewResolver(
		Group("short").Prefix("/").Policy(Policy{}),
		Group("long").Prefix("/admin").Policy(Policy{}),
	)

	name, _, ok := r.Resolve("/admin/security/logs")
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "long" {
		t.Fatalf("longer prefix should win: got %q", name)
	}
}

func TestResolve_StableFallback(t *testing.T) {
	// Two exact matches of equal length: the first registered group wins.
	r := NewResolver(
		Group("first").Exact("/health").Policy(Policy{Timeout: 1 * time.Second}),
		Group("second").Exact("/health").Policy(Policy{Timeout: 2 * time.Second}),
	)

	name, pol, ok := r.Resolve("/health")
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "first" {
		t.Fatalf("first-registered group should win: got %q", name)
	}
	if pol.Timeout != 1*time.Second {
		t.Fatalf("got timeout %v, want %v", pol.Timeout, 1*time.Second)
	}
}

func TestResolve_GRPCMethod(t *testing.T) {
	r := NewResolver(
		Group("ping").Prefix("/gate.Ping/").Policy(Policy{}),
	)
	if name, _, ok := r.Resolve("/gate.Ping/Ping"); !ok || name != "ping" {
		t.Fatalf("got %q, %v", name, ok)
	}
}

func TestDefaults(t *testing.T) {
	r := NewResolver(Defaults(DefaultSensitivePrefixes)...)

	name, pol, _ := r.Resolve("/auth/login")
	if name != "auth" || pol.RateLimit.Max != 5 || pol.RateLimit.Window != 15*time.Minute {
		t.Fatalf("auth: got %q %+v", name, pol.RateLimit)
	}

	name, pol, _ = r.Resolve("/admin/cache/stats")
	if name != "/admin" || !pol.Sensitive || !pol.Roles.Has(security.RoleAdmin) {
		t.Fatalf("admin: got %q %+v", name, pol)
	}
	if !pol.RequiresIdentity() {
		t.Fatal("admin policy must require an identity")
	}

	name, pol, _ = r.Resolve("/protected")
	if name != "/protected" || !pol.Sensitive || pol.RequiresIdentity() {
		t.Fatalf("protected: got %q %+v", name, pol)
	}

	name, pol, _ = r.Resolve("/products")
	if name != "api" || pol.RateLimit.Max != 100 || pol.RateLimit.Scope != "api" {
		t.Fatalf("api: got %q %+v", name, pol.RateLimit)
	}
	if _, pol, _ = r.Resolve("/admin"); pol.RateLimit.Scope != "api" {
		t.Fatalf("admin scope = %q, want the shared api budget", pol.RateLimit.Scope)
	}
}
