package interceptors

import (
	"context"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/security"
)

// clientIP returns the resolved client address of a call, or "unknown".
func clientIP(ctx context.Context, r *security.ClientResolver) string {
	if addr, ok := contextx.ClientIPFromContext(ctx); ok {
		return addr.String()
	}
	if r != nil {
		if addr, ok := r.FromContext(ctx); ok {
			return addr.String()
		}
	}
	return "unknown"
}

// details builds the audit context of a gRPC call.
func details(ctx context.Context, ip, fullMethod string) audit.Details {
	d := audit.Details{
		IP:        ip,
		Method:    "gRPC",
		Path:      fullMethod,
		RequestID: contextx.RequestIDFromContext(ctx),
	}
	if a, ok := contextx.ActorFromContext(ctx); ok {
		d.User = a.Username
		d.Roles = a.Roles
	}
	return d
}

func record(ctx context.Context, events *audit.Log, t audit.EventType, d audit.Details) {
	if events != nil {
		events.Record(ctx, t, d)
	}
}
