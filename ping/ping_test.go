package ping_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Keksclan/goRawrGate/ping"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func startServer(t *testing.T, h ping.Handler) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer()
	ping.Register(s, h)
	t.Cleanup(func() { s.Stop() })
	go func() { _ = s.Serve(lis) }()
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRegisterService(t *testing.T) {
	s := grpc.NewServer()
	ping.Register(s, ping.NewService())
	si, ok := s.GetServiceInfo()["gate.Ping"]
	if !ok {
		t.Fatal("gate.Ping service not registered")
	}
	if len(si.Methods) != 1 || si.Methods[0].Name != "Ping" {
		t.Fatalf("unexpected methods: %+v", si.Methods)
	}
}

func TestPingViaBufconn(t *testing.T) {
	conn := dial(t, startServer(t, ping.NewService()))

	resp := new(ping.PingResponse)
	if err := conn.Invoke(t.Context(), ping.FullMethod, &ping.PingRequest{Message: "hello"}, resp); err != nil {
		t.Fatalf("Ping RPC failed: %v", err)
	}
	if resp.Message != "hello" {
		t.Fatalf("expected message %q, got %q", "hello", resp.Message)
	}
	if resp.Status != ping.StatusOK {
		t.Fatalf("status = %q", resp.Status)
	}
	if diff := time.Now().Unix() - resp.ServerTimeUnix; diff < 0 || diff > 5 {
		t.Fatalf("ServerTimeUnix is not recent: %d (diff %d)", resp.ServerTimeUnix, diff)
	}
}

func TestReport_Checks(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	svc := ping.NewService(
		ping.WithClock(func() time.Time { return now }),
		ping.WithCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
		ping.WithCheck("cache", func(context.Context) error { return nil }),
	)
	now = now.Add(90 * time.Second)

	r := svc.Report(t.Context())
	if r.Status != ping.StatusDegraded {
		t.Fatalf("status = %q, want degraded", r.Status)
	}
	if r.UptimeSeconds != 90 {
		t.Fatalf("uptime = %d", r.UptimeSeconds)
	}
	if r.Checks["cache"] != ping.StatusOK || r.Checks["redis"] != "connection refused" {
		t.Fatalf("checks = %v", r.Checks)
	}
}
