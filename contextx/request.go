// Package contextx carries per-request facts established by the gateway
// stages: the request id, the authenticated Actor, the resolved client
// address and the policy group of the target.
package contextx

import (
	"context"
	"net/netip"
)

type contextKey int

const (
	actorKey contextKey = iota
	requestIDKey
	groupKey
	clientIPKey
)

// WithRequestID stores the id assigned to the request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithGroup stores the name of the policy group the target resolved to.
func WithGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, groupKey, group)
}

// GroupFromContext returns the policy group name, or "" when the target
// matched no group.
func GroupFromContext(ctx context.Context) string {
	g, _ := ctx.Value(groupKey).(string)
	return g
}

// WithClientIP stores the resolved client address. Rate limiting and the
// audit trail key on it.
func WithClientIP(ctx context.Context, addr netip.Addr) context.Context {
	return context.WithValue(ctx, clientIPKey, addr)
}

// ClientIPFromContext returns the client address; ok is false when none
// or an invalid one was stored.
func ClientIPFromContext(ctx context.Context) (addr netip.Addr, ok bool) {
	addr, ok = ctx.Value(clientIPKey).(netip.Addr)
	return addr, ok && addr.IsValid()
}
