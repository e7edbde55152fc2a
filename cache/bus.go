package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Invalidator drops cache keys after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// DefaultInvalidationSubject is the NATS subject used by Bus.
const DefaultInvalidationSubject = "gate.cache.invalidate"

type invalidation struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
}

// Bus shares invalidations between gateway processes over NATS. Values stay
// local to each process; only the key deletions are broadcast.
type Bus struct {
	store   *Store
	conn    *nats.Conn
	subject string
	origin  string
	sub     *nats.Subscription
	log     *slog.Logger
}

// NewBus subscribes store to invalidations published on subject (empty
// selects DefaultInvalidationSubject). Messages this Bus published itself are
// ignored.
func NewBus(store *Store, conn *nats.Conn, subject string) (*Bus, error) {
	if subject == "" {
		subject = DefaultInvalidationSubject
	}
	b := &Bus{
		store:   store,
		conn:    conn,
		subject: subject,
		origin:  uuid.NewString(),
		log:     store.log,
	}
	sub, err := conn.Subscribe(subject, b.handle)
	if err != nil {
		return nil, fmt.Errorf("cache: subscribe %s: %w", subject, err)
	}
	b.sub = sub
	return b, nil
}

func (b *Bus) handle(msg *nats.Msg) {
	var inv invalidation
	if err := json.Unmarshal(msg.Data, &inv); err != nil {
		b.log.Warn("cache invalidation decode failed", "err", err)
		return
	}
	if inv.Origin == b.origin {
		return
	}
	_ = b.store.Invalidate(context.Background(), inv.Keys...)
}

// Invalidate deletes keys locally, then publishes them to peers.
func (b *Bus) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_ = b.store.Invalidate(ctx, keys...)

	data, err := json.Marshal(invalidation{Origin: b.origin, Keys: keys})
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("cache: publish invalidation: %w", err)
	}
	return nil
}

// Close stops receiving invalidations. The connection is left open.
func (b *Bus) Close() error {
	return b.sub.Unsubscribe()
}
