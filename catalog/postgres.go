package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a Repository storing records as JSONB documents in the
// catalog_documents table created by Migrate. IDs are random UUIDs.
type Postgres[E any, PT ptr[E]] struct {
	kind Kind
	db   DB
	now  func() time.Time
}

// NewPostgres creates a document store for kind k on db.
func NewPostgres[E any, PT ptr[E]](k Kind, db DB) *Postgres[E, PT] {
	return &Postgres[E, PT]{kind: k, db: db, now: time.Now}
}

// List returns every record of the kind, oldest first.
func (p *Postgres[E, PT]) List(ctx context.Context) ([]PT, error) {
	rows, err := p.db.Query(ctx,
		`SELECT body FROM catalog_documents WHERE kind = $1 ORDER BY created_at, id`, p.kind.Plural)
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", p.kind, err)
	}
	defer rows.Close()

	var out []PT
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("catalog: list %s: %w", p.kind, err)
		}
		v, err := p.decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", p.kind, err)
	}
	return out, nil
}

// Get returns the record with id.
func (p *Postgres[E, PT]) Get(ctx context.Context, id string) (PT, error) {
	var raw []byte
	err := p.db.QueryRow(ctx,
		`SELECT body FROM catalog_documents WHERE kind = $1 AND id = $2`, p.kind.Plural, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(p.kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", p.kind.Singular, err)
	}
	return p.decode(raw)
}

// Create validates v, assigns a UUID and inserts it.
func (p *Postgres[E, PT]) Create(ctx context.Context, v PT) (PT, error) {
	if err := prepare(v); err != nil {
		return nil, err
	}
	meta := v.Base()
	meta.ID = uuid.NewString()
	meta.CreatedAt = p.now().UTC().Truncate(time.Microsecond)
	meta.UpdatedAt = nil

	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if _, err := p.db.Exec(ctx,
		`INSERT INTO catalog_documents (kind, id, body, created_at) VALUES ($1, $2, $3, $4)`,
		p.kind.Plural, meta.ID, body, meta.CreatedAt); err != nil {
		return nil, fmt.Errorf("catalog: create %s: %w", p.kind.Singular, err)
	}
	return v, nil
}

// Update replaces the record with id by v, keeping its creation time.
func (p *Postgres[E, PT]) Update(ctx context.Context, id string, v PT) (PT, error) {
	if err := prepare(v); err != nil {
		return nil, err
	}

	var created time.Time
	err := p.db.QueryRow(ctx,
		`SELECT created_at FROM catalog_documents WHERE kind = $1 AND id = $2`, p.kind.Plural, id).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(p.kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: update %s: %w", p.kind.Singular, err)
	}

	now := p.now().UTC().Truncate(time.Microsecond)
	meta := v.Base()
	meta.ID = id
	meta.CreatedAt = created.UTC()
	meta.UpdatedAt = &now

	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE catalog_documents SET body = $3, updated_at = $4 WHERE kind = $1 AND id = $2`,
		p.kind.Plural, id, body, now)
	if err != nil {
		return nil, fmt.Errorf("catalog: update %s: %w", p.kind.Singular, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound(p.kind, id)
	}
	return v, nil
}

// Delete removes the record with id.
func (p *Postgres[E, PT]) Delete(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx,
		`DELETE FROM catalog_documents WHERE kind = $1 AND id = $2`, p.kind.Plural, id)
	if err != nil {
		return fmt.Errorf("catalog: delete %s: %w", p.kind.Singular, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(p.kind, id)
	}
	return nil
}

func (p *Postgres[E, PT]) decode(raw []byte) (PT, error) {
	var e E
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", p.kind.Singular, err)
	}
	return PT(&e), nil
}
