// Package audit keeps the gateway's security audit trail: a bounded
// in-memory ring of events, mirrored to the structured log, Prometheus,
// optional external sinks and live subscribers.
package audit

import (
	"log/slog"
	"time"

	"github.com/Keksclan/goRawrGate/security"
)

// EventType enumerates security events.
type EventType string

const (
	RateLimitExceeded         EventType = "RATE_LIMIT_EXCEEDED"
	UnauthorizedAccess        EventType = "UNAUTHORIZED_ACCESS"
	InsufficientPrivileges    EventType = "INSUFFICIENT_PRIVILEGES"
	AuthenticatedRequest      EventType = "AUTHENTICATED_REQUEST"
	UnauthorizedAccessAttempt EventType = "UNAUTHORIZED_ACCESS_ATTEMPT"
	InvalidToken              EventType = "INVALID_TOKEN"
	IPBlocked                 EventType = "IP_BLOCKED"
)

// level is the slog level an event type is logged at.
func (t EventType) level() slog.Level {
	if t == AuthenticatedRequest {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

// Details is the request context attached to an event.
type Details struct {
	IP            string           `json:"ip,omitempty"`
	UserAgent     string           `json:"userAgent,omitempty"`
	Method        string           `json:"method,omitempty"`
	Path          string           `json:"path,omitempty"`
	User          string           `json:"user,omitempty"`
	Roles         security.RoleSet `json:"roles,omitempty"`
	RequiredRoles security.RoleSet `json:"requiredRoles,omitempty"`
	RequestID     string           `json:"requestId,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

func (d Details) attrs() []any {
	var a []any
	add := func(k, v string) {
		if v != "" {
			a = append(a, k, v)
		}
	}
	add("ip", d.IP)
	add("user_agent", d.UserAgent)
	add("method", d.Method)
	add("path", d.Path)
	add("user", d.User)
	if !d.Roles.Empty() {
		a = append(a, "roles", d.Roles.String())
	}
	if !d.RequiredRoles.Empty() {
		a = append(a, "required_roles", d.RequiredRoles.String())
	}
	add("request_id", d.RequestID)
	add("reason", d.Reason)
	return a
}

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Details   Details   `json:"details"`
}
