package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/security"
)

// errBlocked is allocated once to avoid per-request allocations on the hot path.
var errBlocked = status.Error(codes.PermissionDenied, "blocked")

func checkIP(ctx context.Context, b *security.IPBlocker, clients *security.ClientResolver, events *audit.Log, fullMethod string) (context.Context, error) {
	addr, _ := clients.FromContext(ctx)
	if !b.Allowed(addr) {
		ip := "unknown"
		if addr.IsValid() {
			ip = addr.String()
		}
		record(ctx, events, audit.IPBlocked, details(ctx, ip, fullMethod))
		return ctx, errBlocked
	}
	return contextx.WithClientIP(ctx, addr), nil
}

// IPBlockUnary returns a unary server interceptor that denies calls whose
// client address the IPBlocker rejects. Accepted calls carry the resolved
// address in their context.
func IPBlockUnary(b *security.IPBlocker, clients *security.ClientResolver, events *audit.Log) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := checkIP(ctx, b, clients, events, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// IPBlockStream returns a stream server interceptor that denies calls whose
// client address the IPBlocker rejects.
func IPBlockStream(b *security.IPBlocker, clients *security.ClientResolver, events *audit.Log) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := checkIP(ss.Context(), b, clients, events, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, withContext(ss, ctx))
	}
}
