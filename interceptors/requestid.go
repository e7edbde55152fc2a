package interceptors

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/Keksclan/goRawrGate/contextx"
)

// RequestIDMetadataKey is the metadata key an incoming request id is read
// from.
const RequestIDMetadataKey = "x-request-id"

// ensureRequestID returns the context enriched with a request ID if one is not
// already present. An id supplied by the caller in metadata is kept.
func ensureRequestID(ctx context.Context) context.Context {
	if contextx.RequestIDFromContext(ctx) != "" {
		return ctx
	}
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDMetadataKey); len(v) > 0 {
			id = v[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	return contextx.WithRequestID(ctx, id)
}

// RequestIDUnary returns a unary server interceptor that ensures a request ID
// is present in the context.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		return handler(ensureRequestID(ctx), req)
	}
}

// RequestIDStream returns a stream server interceptor that ensures a request ID
// is present in the stream context.
func RequestIDStream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		return handler(srv, withContext(ss, ensureRequestID(ss.Context())))
	}
}
