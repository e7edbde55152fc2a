package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Keksclan/goRawrGate/security"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func mustJWT(t *testing.T, opts ...JWTOption) *JWT {
	t.Helper()
	j, err := NewJWT(testSecret, opts...)
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}
	t.Cleanup(j.Close)
	return j
}

func mustIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()
	i, err := NewIssuer(testSecret, "", ttl)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return i
}

var bob = User{ID: "2", Username: "bob", Roles: security.Roles(security.RoleUser, security.RoleAdmin)}

func TestJWT_RoundTrip(t *testing.T) {
	tok, exp, err := mustIssuer(t, time.Hour).Issue(bob)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry %v is in the past", exp)
	}

	a, err := mustJWT(t).Authenticate(t.Context(), tok)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if a.Subject != "2" || a.Username != "bob" {
		t.Fatalf("got %+v", a)
	}
	if a.Roles != bob.Roles {
		t.Fatalf("roles: got %v, want %v", a.Roles, bob.Roles)
	}
}

func TestJWT_Expired(t *testing.T) {
	tok, _, err := mustIssuer(t, time.Minute).Issue(bob)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	later := func() time.Time { return time.Now().Add(time.Hour) }
	_, err = mustJWT(t, WithJWTClock(later), WithLeeway(0)).Authenticate(t.Context(), tok)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestJWT_WrongSecret(t *testing.T) {
	other, err := NewIssuer([]byte(strings.Repeat("x", MinSecretLen)), "", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	tok, _, err := other.Issue(bob)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := mustJWT(t).Authenticate(t.Context(), tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestJWT_WrongIssuer(t *testing.T) {
	tok, _, err := mustIssuer(t, time.Hour).Issue(bob)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := mustJWT(t, WithIssuer("someone-else")).Authenticate(t.Context(), tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestJWT_Garbage(t *testing.T) {
	if _, err := mustJWT(t).Authenticate(t.Context(), "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestNewJWT_ShortSecret(t *testing.T) {
	if _, err := NewJWT([]byte("short")); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := NewIssuer([]byte("short"), "", 0); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := BearerToken(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}
