package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// defaultHeaderPriority is the ordered list of headers inspected when the
// peer is a trusted proxy and no explicit priority was configured.
var defaultHeaderPriority = []string{"X-Real-IP", "X-Forwarded-For"}

// HeaderSource abstracts over http.Header and gRPC metadata.
type HeaderSource interface {
	Values(key string) []string
}

// MD adapts gRPC metadata to HeaderSource.
type MD metadata.MD

// Values returns the metadata values for key (case-insensitive).
func (m MD) Values(key string) []string { return metadata.MD(m).Get(key) }

// ClientResolver derives the client identifier used for rate limiting,
// IP blocking and audit records.
//
// The identifier is the TCP peer address. Forwarding headers are honoured
// only when that peer lies inside one of the trusted proxy prefixes; the
// headers are then walked in priority order and the first parseable IP
// wins. For X-Forwarded-For the left-most entry is the client.
type ClientResolver struct {
	trustedProxies []netip.Prefix
	headerPriority []string
}

// NewClientResolver parses the trusted proxy list. A nil header priority
// selects X-Real-IP then X-Forwarded-For.
func NewClientResolver(trustedProxies, headerPriority []string) (*ClientResolver, error) {
	proxies, err := parsePrefixes(trustedProxies)
	if err != nil {
		return nil, fmt.Errorf("clientip: invalid trusted proxy: %w", err)
	}
	if len(headerPriority) == 0 {
		headerPriority = defaultHeaderPriority
	}
	return &ClientResolver{trustedProxies: proxies, headerPriority: headerPriority}, nil
}

// FromRequest resolves the client address of an HTTP request.
func (c *ClientResolver) FromRequest(r *http.Request) (netip.Addr, bool) {
	return c.Resolve(r.RemoteAddr, r.Header)
}

// FromContext resolves the client address of a gRPC call using the peer
// stored in ctx and the incoming metadata.
func (c *ClientResolver) FromContext(ctx context.Context) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	md, _ := metadata.FromIncomingContext(ctx)
	return c.Resolve(p.Addr.String(), MD(md))
}

// Resolve determines the effective client address from the raw peer address
// (host or host:port) and the request headers.
func (c *ClientResolver) Resolve(remote string, h HeaderSource) (netip.Addr, bool) {
	peerAddr, ok := parseHostPort(remote)
	if !ok {
		return netip.Addr{}, false
	}
	if h != nil && matchesAny(peerAddr, c.trustedProxies) {
		if addr, found := addrFromHeaders(h, c.headerPriority); found {
			return addr, true
		}
	}
	return peerAddr, true
}

// Key returns the client identifier as a string, or "unknown" when the
// address cannot be determined. All unknown clients share one bucket.
func (c *ClientResolver) Key(r *http.Request) string {
	if addr, ok := c.FromRequest(r); ok {
		return addr.String()
	}
	return "unknown"
}

// parseHostPort strips an optional port and any IPv6 zone-less brackets.
func parseHostPort(s string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

func addrFromHeaders(h HeaderSource, priority []string) (netip.Addr, bool) {
	for _, key := range priority {
		for _, v := range h.Values(key) {
			for part := range strings.SplitSeq(v, ",") {
				trimmed := strings.TrimSpace(part)
				if trimmed == "" {
					continue
				}
				if ip, err := netip.ParseAddr(trimmed); err == nil {
					return ip.Unmap(), true
				}
			}
		}
	}
	return netip.Addr{}, false
}
