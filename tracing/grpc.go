package tracing

import (
	"context"
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrGate/contextx"
)

// UnaryServerInterceptor starts a server span per unary call. A nil cfg
// yields a passthrough.
func UnaryServerInterceptor(cfg *Config) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg == nil {
			return handler(ctx, req)
		}
		ctx, span := cfg.startRPC(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		endRPC(span, err)
		return resp, err
	}
}

// StreamServerInterceptor starts a server span per stream. A nil cfg
// yields a passthrough.
func StreamServerInterceptor(cfg *Config) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg == nil {
			return handler(srv, ss)
		}
		ctx, span := cfg.startRPC(ss.Context(), info.FullMethod)
		defer span.End()

		err := handler(srv, tracedStream{ServerStream: ss, ctx: ctx})
		endRPC(span, err)
		return err
	}
}

// startRPC continues the trace carried in the incoming metadata.
func (c *Config) startRPC(ctx context.Context, fullMethod string) (context.Context, trace.Span) {
	md, _ := metadata.FromIncomingContext(ctx)
	ctx = c.propagators().Extract(ctx, mdCarrier(md))

	service, method, _ := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
	}
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String(attrRequestID, id))
	}
	return c.tracer().Start(ctx, fullMethod, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(attrs...))
}

func endRPC(span trace.Span, err error) {
	st := status.Convert(err)
	span.SetAttributes(attribute.String("rpc.grpc.status_code", st.Code().String()))
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, st.Message())
}

// mdCarrier reads and writes trace headers in gRPC metadata.
type mdCarrier metadata.MD

func (m mdCarrier) Get(key string) string {
	if v := metadata.MD(m).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (m mdCarrier) Set(key, value string) { metadata.MD(m).Set(key, value) }

func (m mdCarrier) Keys() []string { return slices.Collect(maps.Keys(m)) }

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s tracedStream) Context() context.Context { return s.ctx }
