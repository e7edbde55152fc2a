package security

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

func mustResolver(t *testing.T, proxies []string, priority []string) *ClientResolver {
	t.Helper()
	r, err := NewClientResolver(proxies, priority)
	if err != nil {
		t.Fatalf("NewClientResolver: %v", err)
	}
	return r
}

func request(remote string, headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = remote
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestResolve_PeerAddressWithoutProxy(t *testing.T) {
	res := mustResolver(t, nil, nil)
	got, ok := res.FromRequest(request("198.51.100.9:4000", map[string]string{
		"X-Forwarded-For": "203.0.113.1",
	}))
	if !ok {
		t.Fatal("expected address")
	}
	if got.String() != "198.51.100.9" {
		t.Fatalf("got %s, want peer address; headers from untrusted peers must be ignored", got)
	}
}

func TestResolve_TrustedProxyUsesRealIP(t *testing.T) {
	res := mustResolver(t, []string{"10.0.0.1"}, nil)
	got, _ := res.FromRequest(request("10.0.0.1:9000", map[string]string{
		"X-Real-IP":       "203.0.113.42",
		"X-Forwarded-For": "192.168.1.1",
	}))
	if got.String() != "203.0.113.42" {
		t.Fatalf("got %s, want X-Real-IP value", got)
	}
}

func TestResolve_ForwardedForLeftmost(t *testing.T) {
	res := mustResolver(t, []string{"10.0.0.0/8"}, nil)
	got, _ := res.FromRequest(request("10.0.0.1:9000", map[string]string{
		"X-Forwarded-For": "198.51.100.5, 10.0.0.2",
	}))
	if got.String() != "198.51.100.5" {
		t.Fatalf("got %s, want left-most forwarded entry", got)
	}
}

func TestResolve_TrustedProxyFallsBackToPeer(t *testing.T) {
	res := mustResolver(t, []string{"10.0.0.1"}, nil)
	got, _ := res.FromRequest(request("10.0.0.1:9000", nil))
	if got.String() != "10.0.0.1" {
		t.Fatalf("got %s, want proxy address when no header is set", got)
	}
}

func TestResolve_CustomHeaderPriority(t *testing.T) {
	res := mustResolver(t, []string{"10.0.0.1"}, []string{"X-Client-IP"})
	got, _ := res.FromRequest(request("10.0.0.1:9000", map[string]string{
		"X-Client-IP": "172.16.5.5",
		"X-Real-IP":   "203.0.113.1",
	}))
	if got.String() != "172.16.5.5" {
		t.Fatalf("got %s, want custom header value", got)
	}
}

func TestKey_UnknownRemote(t *testing.T) {
	res := mustResolver(t, nil, nil)
	if k := res.Key(request("garbage", nil)); k != "unknown" {
		t.Fatalf("got %q, want %q", k, "unknown")
	}
}

func TestFromContext_GRPCPeer(t *testing.T) {
	res := mustResolver(t, []string{"10.0.0.1"}, nil)
	ctx := peer.NewContext(t.Context(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1234},
	})
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("x-real-ip", "192.0.2.10"))

	got, ok := res.FromContext(ctx)
	if !ok {
		t.Fatal("expected address")
	}
	if got.String() != "192.0.2.10" {
		t.Fatalf("got %s, want metadata address via trusted proxy", got)
	}
}

func TestFromContext_NoPeer(t *testing.T) {
	res := mustResolver(t, nil, nil)
	if _, ok := res.FromContext(t.Context()); ok {
		t.Fatal("expected no address without peer info")
	}
}

func TestNewClientResolver_InvalidProxy(t *testing.T) {
	if _, err := NewClientResolver([]string{"not-valid"}, nil); err == nil {
		t.Fatal("expected error for invalid trusted proxy")
	}
}
