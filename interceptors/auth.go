package interceptors

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/auth"
)

var errInvalidToken = status.Error(codes.Unauthenticated, "invalid or expired token")

// authenticate runs fn on the incoming metadata. Status errors from fn pass
// through unchanged; any other failure is recorded as INVALID_TOKEN and
// reported as Unauthenticated.
func authenticate(ctx context.Context, fn auth.AuthFunc, events *audit.Log, fullMethod string) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	newCtx, err := fn(ctx, fullMethod, md)
	if err == nil {
		return newCtx, nil
	}
	if _, ok := status.FromError(err); ok {
		return ctx, err
	}
	d := details(ctx, clientIP(ctx, nil), fullMethod)
	d.Reason = "invalid token"
	if !errors.Is(err, auth.ErrInvalidToken) {
		d.Reason = err.Error()
	}
	record(ctx, events, audit.InvalidToken, d)
	return ctx, errInvalidToken
}

// AuthUnary returns a unary server interceptor that authenticates calls
// with fn. Calls fn leaves anonymous reach the handler without an Actor.
func AuthUnary(fn auth.AuthFunc, events *audit.Log) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticate(ctx, fn, events, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStream is the stream counterpart of AuthUnary.
func AuthStream(fn auth.AuthFunc, events *audit.Log) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticate(ss.Context(), fn, events, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, withContext(ss, ctx))
	}
}
