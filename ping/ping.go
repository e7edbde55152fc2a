// Package ping provides the gateway's built-in gRPC health service,
// gate.Ping/Ping. It uses [grpc.ServiceDesc] registration so that no
// protobuf code generation is required.
//
// Because the request/response types are plain Go structs, the package
// registers a thin codec wrapper that JSON-encodes Ping types while
// delegating all other messages to the standard proto codec. Importing the
// package activates the codec.
package ping

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"google.golang.org/grpc"
	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // ensure default proto codec is registered first
	"google.golang.org/protobuf/proto"
)

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// PingRequest is the input for the Ping method.
type PingRequest struct {
	Message string `json:"message"`
}

// PingResponse is the output of the Ping method.
type PingResponse struct {
	Message        string            `json:"message"`
	Status         string            `json:"status"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	ServerTimeUnix int64             `json:"server_time_unix"`
	Checks         map[string]string `json:"checks,omitempty"`
}

// pingMsg is a marker interface satisfied by PingRequest and PingResponse.
type pingMsg interface {
	isPingMsg()
}

func (*PingRequest) isPingMsg()  {}
func (*PingResponse) isPingMsg() {}

// Handler is the interface that a Ping service implementation must satisfy.
type Handler interface {
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
}

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Service reports gateway health. It echoes the request message, reports
// uptime and runs the registered dependency checks; any failing check turns
// the status to "degraded".
type Service struct {
	started time.Time
	now     func() time.Time
	checks  map[string]Check
}

// Option configures a Service.
type Option func(*Service)

// WithCheck registers a named dependency check.
func WithCheck(name string, c Check) Option {
	return func(s *Service) { s.checks[name] = c }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service whose uptime counts from now.
func NewService(opts ...Option) *Service {
	s := &Service{now: time.Now, checks: make(map[string]Check)}
	for _, o := range opts {
		o(s)
	}
	s.started = s.now()
	return s
}

// Ping implements Handler.
func (s *Service) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {
	resp := s.Report(ctx)
	resp.Message = req.Message
	return resp, nil
}

// Report runs every check and returns the aggregated health.
func (s *Service) Report(ctx context.Context) *PingResponse {
	now := s.now()
	resp := &PingResponse{
		Status:         StatusOK,
		UptimeSeconds:  int64(now.Sub(s.started) / time.Second),
		ServerTimeUnix: now.Unix(),
	}
	if len(s.checks) == 0 {
		return resp
	}
	resp.Checks = make(map[string]string, len(s.checks))
	for _, name := range slices.Sorted(maps.Keys(s.checks)) {
		if err := s.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = StatusDegraded
			continue
		}
		resp.Checks[name] = StatusOK
	}
	return resp
}

// FullMethod is the gRPC method name of Ping.
const FullMethod = "/gate.Ping/Ping"

// ServiceDesc is the grpc.ServiceDesc for the gate.Ping service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "gate.Ping",
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ping",
			Handler:    pingHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gate/ping.proto",
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(PingRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Ping(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod,
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return srv.(Handler).Ping(ctx, r.(*PingRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// Register registers a Ping service implementation on the given gRPC server.
func Register(s *grpc.Server, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}

func init() {
	grpcEncoding.RegisterCodec(pingCodec{})
}

// pingCodec handles PingRequest and PingResponse via JSON and delegates all
// other types to proto.Marshal/Unmarshal.
type pingCodec struct{}

func (pingCodec) Name() string { return "proto" }

func (pingCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(pingMsg); ok {
		return json.Marshal(v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("ping codec: unsupported message type %T", v)
}

func (pingCodec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(pingMsg); ok {
		return json.Unmarshal(data, v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("ping codec: unsupported message type %T", v)
}
