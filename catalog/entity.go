// Package catalog holds the gateway's business resources (products,
// clients and orders) and the repositories that serve them: an in-memory
// store, a relay to an upstream service and a PostgreSQL document store.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("catalog: not found")

// ValidationError reports a rejected record. Its message is safe to show
// to clients.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return strings.Join(e.Fields, " and ") + " " + e.Reason
}

func required(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Reason: "are required"}
}

// Meta is embedded in every record. Repositories own ID and the
// timestamps; values supplied by callers are overwritten.
type Meta struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Base returns m. It lets generic code reach the embedded Meta.
func (m *Meta) Base() *Meta { return m }

// Entity is implemented by pointers to catalog records.
type Entity interface {
	Base() *Meta
	Validate() error
}

// normalizer is implemented by records with derived fields.
type normalizer interface {
	Normalize()
}

// prepare validates v and computes its derived fields.
func prepare(v Entity) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if n, ok := v.(normalizer); ok {
		n.Normalize()
	}
	return nil
}

// Kind names a resource the way it appears in paths and cache keys.
type Kind struct {
	Singular string
	Plural   string
}

// The catalog resources.
var (
	Products = Kind{Singular: "product", Plural: "products"}
	Clients  = Kind{Singular: "client", Plural: "clients"}
	Orders   = Kind{Singular: "order", Plural: "orders"}
)

func (k Kind) String() string { return k.Plural }

func notFound(k Kind, id string) error {
	return fmt.Errorf("%s %q: %w", k.Singular, id, ErrNotFound)
}
