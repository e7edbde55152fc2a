package gorawrgate

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/auth"
	"github.com/Keksclan/goRawrGate/cache"
	"github.com/Keksclan/goRawrGate/interceptors"
	"github.com/Keksclan/goRawrGate/internal/core"
	"github.com/Keksclan/goRawrGate/middleware"
	"github.com/Keksclan/goRawrGate/policy"
	"github.com/Keksclan/goRawrGate/ratelimit"
	"github.com/Keksclan/goRawrGate/security"
	"github.com/Keksclan/goRawrGate/tracing"
)

// Option configures a Gateway.
type Option func(*config)

type grpcPair struct {
	unary  grpc.UnaryServerInterceptor
	stream grpc.StreamServerInterceptor
}

// WithLogger sets the logger used by the gateway and its default
// components.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithRegistry registers the gateway's collectors on r instead of a
// private registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithCache supplies the cache store.
func WithCache(s *cache.Store) Option {
	return func(c *config) { c.cache = s }
}

// WithAudit supplies the audit log.
func WithAudit(l *audit.Log) Option {
	return func(c *config) { c.audit = l }
}

// WithClientResolver sets how client addresses are derived. The default
// trusts no proxy.
func WithClientResolver(r *security.ClientResolver) Option {
	return func(c *config) { c.clients = r }
}

// WithPolicies replaces the stock policy groups (policy.Defaults).
func WithPolicies(groups ...*policy.GroupBuilder) Option {
	return func(c *config) { c.groups = groups }
}

// WithRecovery installs panic recovery as the outermost stage.
func WithRecovery() Option {
	return func(c *config) {
		c.add(OrderRecovery, func(g *Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.Recovery(g.log), grpcPair{interceptors.RecoveryUnary(g.log), interceptors.RecoveryStream(g.log)}
		})
	}
}

// WithRequestID assigns every request and call an id.
func WithRequestID() Option {
	return func(c *config) {
		c.add(OrderRequestID, func(*Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.RequestID(), grpcPair{interceptors.RequestIDUnary(), interceptors.RequestIDStream()}
		})
	}
}

// WithOpenTelemetry creates a span for every request and call.
func WithOpenTelemetry(cfg *tracing.Config) Option {
	return func(c *config) {
		c.add(OrderTracing, func(*Gateway) (core.HTTPMiddleware, grpcPair) {
			return tracing.Middleware(cfg), grpcPair{tracing.UnaryServerInterceptor(cfg), tracing.StreamServerInterceptor(cfg)}
		})
	}
}

// WithMetrics counts HTTP requests on the gateway registry.
func WithMetrics() Option {
	return func(c *config) {
		c.add(OrderMetrics, func(g *Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.Metrics(g.registry), grpcPair{}
		})
	}
}

// WithSecurityHeaders adds the hardening headers to every HTTP response.
// A nil cfg selects security.DefaultHeadersConfig.
func WithSecurityHeaders(cfg *security.HeadersConfig) Option {
	return func(c *config) {
		hc := security.DefaultHeadersConfig()
		if cfg != nil {
			hc = *cfg
		}
		h := security.NewHeaders(hc)
		c.add(OrderSecurityHeaders, func(*Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.SecurityHeaders(h), grpcPair{}
		})
	}
}

// WithIPBlock rejects clients b does not allow, on both transports.
func WithIPBlock(b *security.IPBlocker) Option {
	return func(c *config) {
		c.add(OrderIPBlock, func(g *Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.IPBlock(b, g.audit), grpcPair{
				interceptors.IPBlockUnary(b, g.clients, g.audit),
				interceptors.IPBlockStream(b, g.clients, g.audit),
			}
		})
	}
}

// WithValidation rejects malformed HTTP requests. A nil cfg selects the
// reference limits.
func WithValidation(cfg *security.ValidationConfig) Option {
	return func(c *config) {
		var vc security.ValidationConfig
		if cfg != nil {
			vc = *cfg
		}
		v := security.NewValidator(vc)
		c.add(OrderValidation, func(*Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.ValidateInput(v), grpcPair{}
		})
	}
}

// WithRateLimit enforces the rate limit rule of each policy group. Groups
// without a rule are not limited.
func WithRateLimit() Option {
	return func(c *config) {
		c.add(OrderRateLimit, func(g *Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.RateLimit(g.limits, g.audit), grpcPair{
				interceptors.RateLimitUnary(g.limits, g.clients, g.audit),
				interceptors.RateLimitStream(g.limits, g.clients, g.audit),
			}
		})
	}
}

// WithGlobalRateLimit sets the limiter for targets whose group has no
// rule of its own.
func WithGlobalRateLimit(l ratelimit.Limiter) Option {
	return func(c *config) { c.global = l }
}

// WithRateLimitFactory selects the limiter implementation for policy
// groups, e.g. a RedisWindow for counters shared between instances.
func WithRateLimitFactory(f ratelimit.Factory) Option {
	return func(c *config) { c.factory = f }
}

// WithAuth verifies bearer tokens on both transports. Requests without a
// token stay anonymous.
func WithAuth(a auth.Authenticator) Option {
	return func(c *config) {
		fn := auth.MetadataAuth(a)
		c.add(OrderAuthenticate, func(g *Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.Authenticate(a, g.audit), grpcPair{interceptors.AuthUnary(fn, g.audit), interceptors.AuthStream(fn, g.audit)}
		})
	}
}

// WithAuthorization enforces the identity and role requirements of each
// policy group.
func WithAuthorization() Option {
	return func(c *config) {
		c.add(OrderAuthorize, func(g *Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.Authorize(g.audit), grpcPair{
				interceptors.AuthorizeUnary(g.resolver, g.audit),
				interceptors.AuthorizeStream(g.resolver, g.audit),
			}
		})
	}
}

// WithSecurityLogging records authenticated requests and anonymous
// requests to sensitive groups.
func WithSecurityLogging() Option {
	return func(c *config) {
		c.add(OrderSecurityLog, func(g *Gateway) (core.HTTPMiddleware, grpcPair) {
			return middleware.SecurityLogger(g.audit), grpcPair{}
		})
	}
}

// WithHTTPMiddleware inserts a custom HTTP stage at order.
func WithHTTPMiddleware(order int, m func(http.Handler) http.Handler) Option {
	return func(c *config) {
		c.add(order, func(*Gateway) (core.HTTPMiddleware, grpcPair) { return m, grpcPair{} })
	}
}

// WithUnaryInterceptor inserts a custom unary interceptor at order.
func WithUnaryInterceptor(order int, i grpc.UnaryServerInterceptor) Option {
	return func(c *config) {
		c.add(order, func(*Gateway) (core.HTTPMiddleware, grpcPair) { return nil, grpcPair{unary: i} })
	}
}

// WithStreamInterceptor inserts a custom stream interceptor at order.
func WithStreamInterceptor(order int, i grpc.StreamServerInterceptor) Option {
	return func(c *config) {
		c.add(order, func(*Gateway) (core.HTTPMiddleware, grpcPair) { return nil, grpcPair{stream: i} })
	}
}
