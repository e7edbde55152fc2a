package middleware

import (
	"context"
	"net/http"

	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/policy"
	"github.com/Keksclan/goRawrGate/security"
)

type policyKey struct{}

// PolicyFromContext returns the policy resolved for the request, or nil.
func PolicyFromContext(ctx context.Context) *policy.Policy {
	p, _ := ctx.Value(policyKey{}).(*policy.Policy)
	return p
}

// Resolve derives the client address with clients and the policy group of
// the request path with resolver, and stores both in the context for the
// later stages. Either argument may be nil. A policy Timeout bounds the
// rest of the request.
func Resolve(clients *security.ClientResolver, resolver *policy.Resolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if clients != nil {
				if addr, ok := clients.FromRequest(r); ok {
					ctx = contextx.WithClientIP(ctx, addr)
				}
			}
			if resolver != nil {
				if name, pol, ok := resolver.Resolve(r.URL.Path); ok {
					ctx = contextx.WithGroup(ctx, name)
					ctx = context.WithValue(ctx, policyKey{}, pol)
					if pol != nil && pol.Timeout > 0 {
						var cancel context.CancelFunc
						ctx, cancel = context.WithTimeout(ctx, pol.Timeout)
						defer cancel()
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
