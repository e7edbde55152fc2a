package interceptors

import (
	"context"
	"log/slog"
	"runtime/debug"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrGate/contextx"
)

var errInternal = status.Error(codes.Internal, "internal server error")

// recovered logs a recovered panic with its stack and returns the error
// sent to the client in its place.
func recovered(ctx context.Context, log *slog.Logger, method string, r any) error {
	log.ErrorContext(ctx, "panic recovered",
		"method", method,
		"panic", r,
		"request_id", contextx.RequestIDFromContext(ctx),
		"stack", string(debug.Stack()),
	)
	return errInternal
}

// RecoveryUnary returns a unary server interceptor that turns a panic in
// the handler into an Internal error. A nil log uses slog.Default().
func RecoveryUnary(log *slog.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				resp, err = nil, recovered(ctx, log, info.FullMethod, r)
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStream is the stream counterpart of RecoveryUnary.
func RecoveryStream(log *slog.Logger) grpc.StreamServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctx := context.Background()
				if ss != nil {
					ctx = ss.Context()
				}
				err = recovered(ctx, log, info.FullMethod, r)
			}
		}()
		return handler(srv, ss)
	}
}
