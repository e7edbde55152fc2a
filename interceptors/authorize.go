package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/policy"
)

var (
	errAuthRequired = status.Error(codes.Unauthenticated, "authentication required")
	errForbidden    = status.Error(codes.PermissionDenied, "insufficient privileges")
)

func authorize(ctx context.Context, r *policy.Resolver, events *audit.Log, fullMethod string) error {
	_, pol, ok := r.Resolve(fullMethod)
	if !ok || !pol.RequiresIdentity() {
		return nil
	}
	a, ok := contextx.ActorFromContext(ctx)
	if !ok {
		record(ctx, events, audit.UnauthorizedAccess, details(ctx, clientIP(ctx, nil), fullMethod))
		return errAuthRequired
	}
	if !a.Holds(pol.Roles) {
		d := details(ctx, clientIP(ctx, nil), fullMethod)
		d.RequiredRoles = pol.Roles
		record(ctx, events, audit.InsufficientPrivileges, d)
		return errForbidden
	}
	return nil
}

// AuthorizeUnary returns a unary server interceptor enforcing the identity
// and role requirements of the method's policy group. It must run after
// the authentication interceptor.
func AuthorizeUnary(r *policy.Resolver, events *audit.Log) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if err := authorize(ctx, r, events, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthorizeStream is the stream counterpart of AuthorizeUnary.
func AuthorizeStream(r *policy.Resolver, events *audit.Log) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := authorize(ss.Context(), r, events, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
