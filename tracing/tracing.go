// Package tracing provides OpenTelemetry spans for the gateway's HTTP
// stages and gRPC interceptors. Tracing is optional: the gateway only
// installs it when a Config is supplied.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Keksclan/goRawrGate/tracing"

// attrRequestID carries the gateway request id on spans.
const attrRequestID = "gate.request_id"

// Config selects the tracer provider and propagator used for spans.
type Config struct {
	// TracerProvider supplies the Tracer. When nil the global
	// otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators extracts trace context from incoming carriers. When nil
	// the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

func (c *Config) tracer() trace.Tracer {
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

func (c *Config) propagators() propagation.TextMapPropagator {
	if c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// Stdout builds a Config exporting spans as JSON to w, with W3C trace
// context propagation. The returned function flushes and stops the
// provider.
func Stdout(w io.Writer) (*Config, func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	cfg := &Config{
		TracerProvider: tp,
		Propagators: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		),
	}
	return cfg, tp.Shutdown, nil
}
