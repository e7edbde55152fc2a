package gorawrgate

// Stage order. Lower values run first, both for HTTP requests and gRPC
// calls. Stages 1 to 5 of the offloading pipeline (headers, validation,
// rate limit, authorization, security log) keep this relative order.
const (
	OrderRecovery        = 0
	OrderRequestID       = 100
	OrderTracing         = 200
	OrderResolve         = 250
	OrderMetrics         = 300
	OrderSecurityHeaders = 400
	OrderIPBlock         = 450
	OrderValidation      = 500
	OrderRateLimit       = 600
	OrderAuthenticate    = 700
	OrderAuthorize       = 800
	OrderSecurityLog     = 900
)

// DefaultOptions returns the reference pipeline: recovery, request ids,
// metrics, hardening headers, input validation with the reference limits,
// per-group rate limiting, policy authorization and security logging.
// Authentication needs a key and is added with WithAuth.
func DefaultOptions() []Option {
	return []Option{
		WithRecovery(),
		WithRequestID(),
		WithMetrics(),
		WithSecurityHeaders(nil),
		WithValidation(nil),
		WithRateLimit(),
		WithAuthorization(),
		WithSecurityLogging(),
	}
}
