package catalog

import "context"

// Repository stores records of one kind. Create and Update validate the
// record and stamp its Meta; they return the stored record.
type Repository[T Entity] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, v T) (T, error)
	Update(ctx context.Context, id string, v T) (T, error)
	Delete(ctx context.Context, id string) error
}

// ptr constrains PT to *E implementing Entity, so generic code can both
// allocate records and call their methods.
type ptr[E any] interface {
	*E
	Entity
}
