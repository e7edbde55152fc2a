package audit

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject prefix used by NATSSink.
const DefaultSubjectPrefix = "gate.security"

// NATSSink publishes events as JSON to "<prefix>.<type>", so consumers can
// subscribe to one type or to "<prefix>.>".
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSink returns a sink publishing on conn. An empty prefix selects
// DefaultSubjectPrefix.
func NewNATSSink(conn *nats.Conn, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Subject returns the subject events of type t are published on.
func (s *NATSSink) Subject(t EventType) string {
	return s.prefix + "." + string(t)
}

// Publish implements Sink. The NATS client buffers the message, so this
// does not wait for the server.
func (s *NATSSink) Publish(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.Subject(e.Type), data)
}
