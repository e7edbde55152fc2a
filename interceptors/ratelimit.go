package interceptors

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/ratelimit"
	"github.com/Keksclan/goRawrGate/security"
)

// errRateLimited is allocated once to avoid per-request allocations on the hot path.
var errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")

// allow runs the limiter for one call. Limiter errors fail open.
func allow(ctx context.Context, g *ratelimit.Groups, clients *security.ClientResolver, events *audit.Log, fullMethod string) error {
	ip := clientIP(ctx, clients)
	d, _, err := g.Allow(ctx, fullMethod, ip)
	if err != nil {
		slog.WarnContext(ctx, "rate limiter unavailable, allowing request", "method", fullMethod, "err", err)
	}
	if !d.Allowed {
		record(ctx, events, audit.RateLimitExceeded, details(ctx, ip, fullMethod))
		return errRateLimited
	}
	return nil
}

// RateLimitUnary returns a unary server interceptor that rejects calls once
// the client has exhausted the limiter of the method's policy group (or the
// global limiter when the group has no rule). Rejections are recorded in
// events, which may be nil.
func RateLimitUnary(g *ratelimit.Groups, clients *security.ClientResolver, events *audit.Log) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if err := allow(ctx, g, clients, events, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// RateLimitStream returns a stream server interceptor that rejects calls once
// the client's limiter has been exhausted.
func RateLimitStream(g *ratelimit.Groups, clients *security.ClientResolver, events *audit.Log) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := allow(ss.Context(), g, clients, events, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
