package core

import (
	"cmp"
	"net/http"
	"slices"

	"google.golang.org/grpc"
)

// HTTPMiddleware wraps an http.Handler.
type HTTPMiddleware = func(http.Handler) http.Handler

// middleware represents one gateway stage: its HTTP form and, optionally,
// its gRPC interceptor pair, with a deterministic execution order. Lower
// Order values run first.
type middleware struct {
	HTTP   HTTPMiddleware
	Unary  grpc.UnaryServerInterceptor
	Stream grpc.StreamServerInterceptor
	Order  int
}

// MiddlewareBuilder collects middleware entries and produces sorted chains
// ready for wrapping.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers a stage with the given order. Any of the three forms may
// be nil if the stage does not apply to that transport.
func (b *MiddlewareBuilder) Add(order int, h HTTPMiddleware, unary grpc.UnaryServerInterceptor, stream grpc.StreamServerInterceptor) {
	b.entries = append(b.entries, middleware{
		HTTP:   h,
		Unary:  unary,
		Stream: stream,
		Order:  order,
	})
}

// Len returns the number of registered stages.
func (b *MiddlewareBuilder) Len() int { return len(b.entries) }

// Build sorts the collected middleware by Order (stable) and returns the
// separated HTTP, unary and stream slices.
func (b *MiddlewareBuilder) Build() ([]HTTPMiddleware, []grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	slices.SortStableFunc(b.entries, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})

	var httpChain []HTTPMiddleware
	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor

	for _, m := range b.entries {
		if m.HTTP != nil {
			httpChain = append(httpChain, m.HTTP)
		}
		if m.Unary != nil {
			unary = append(unary, m.Unary)
		}
		if m.Stream != nil {
			stream = append(stream, m.Stream)
		}
	}

	return httpChain, unary, stream
}

// Wrap applies chain to h so that chain[0] is the outermost handler.
func Wrap(h http.Handler, chain []HTTPMiddleware) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}
