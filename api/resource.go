package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Keksclan/goRawrGate/cache"
	"github.com/Keksclan/goRawrGate/catalog"
	"github.com/Keksclan/goRawrGate/middleware"
)

type entity[E any] interface {
	*E
	catalog.Entity
}

// Resource describes one catalog resource to mount.
type Resource[E any, PT entity[E]] struct {
	Kind catalog.Kind
	Repo catalog.Repository[PT]
	// Fallback, when set, answers reads the primary repository failed. Its
	// results are never cached.
	Fallback catalog.Repository[PT]

	// Guards applied per operation; nil leaves the operation open.
	Read   middleware.Middleware
	Create middleware.Middleware
	Write  middleware.Middleware

	// BeforeCreate may adjust a decoded record before it is stored.
	BeforeCreate func(r *http.Request, v PT)
}

// Mount registers the five CRUD routes of res on mux:
// GET /<plural>, GET /<plural>/{id}, POST /<plural>, PUT /<plural>/{id}
// and DELETE /<plural>/{id}.
func Mount[E any, PT entity[E]](mux *http.ServeMux, env *Env, res Resource[E, PT]) {
	h := &resourceHandler[E, PT]{env: env, res: res}
	base := "/" + res.Kind.Plural

	mux.Handle("GET "+base, guard(h.list, res.Read))
	mux.Handle("GET "+base+"/{id}", guard(h.get, res.Read))
	mux.Handle("POST "+base, guard(h.create, res.Create))
	mux.Handle("PUT "+base+"/{id}", guard(h.update, res.Write))
	mux.Handle("DELETE "+base+"/{id}", guard(h.delete, res.Write))
}

type resourceHandler[E any, PT entity[E]] struct {
	env *Env
	res Resource[E, PT]
}

func (h *resourceHandler[E, PT]) listKey() string { return cache.KeyAll(h.res.Kind.Plural) }

func (h *resourceHandler[E, PT]) itemKey(id string) string {
	return cache.KeyItem(h.res.Kind.Singular, id)
}

func (h *resourceHandler[E, PT]) list(w http.ResponseWriter, r *http.Request) {
	items, err := cache.Fetch(r.Context(), h.env.Cache, h.listKey(), h.env.TTL, h.res.Repo.List)
	if err != nil && h.res.Fallback != nil && !errors.Is(err, context.Canceled) {
		h.env.logger().WarnContext(r.Context(), "serving fallback", "resource", h.res.Kind.Plural, "err", err)
		if items, err = h.res.Fallback.List(r.Context()); err == nil {
			w.Header().Set(FallbackHeader, "true")
		}
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []PT{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *resourceHandler[E, PT]) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, err := cache.Fetch(r.Context(), h.env.Cache, h.itemKey(id), h.env.TTL,
		func(ctx context.Context) (PT, error) { return h.res.Repo.Get(ctx, id) })
	if err != nil && h.res.Fallback != nil && !errors.Is(err, catalog.ErrNotFound) && !errors.Is(err, context.Canceled) {
		h.env.logger().WarnContext(r.Context(), "serving fallback", "resource", h.res.Kind.Singular, "id", id, "err", err)
		if item, err = h.res.Fallback.Get(r.Context(), id); err == nil {
			w.Header().Set(FallbackHeader, "true")
		}
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *resourceHandler[E, PT]) create(w http.ResponseWriter, r *http.Request) {
	v := PT(new(E))
	if !decodeJSON(w, r, v) {
		return
	}
	if h.res.BeforeCreate != nil {
		h.res.BeforeCreate(r, v)
	}
	created, err := h.res.Repo.Create(r.Context(), v)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, created.Base().ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *resourceHandler[E, PT]) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v := PT(new(E))
	if !decodeJSON(w, r, v) {
		return
	}
	updated, err := h.res.Repo.Update(r.Context(), id, v)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *resourceHandler[E, PT]) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.res.Repo.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// invalidate drops the listing and the item after a successful write. A
// failure to broadcast is logged; the local entries are gone regardless.
func (h *resourceHandler[E, PT]) invalidate(r *http.Request, id string) {
	if err := h.env.invalidator().Invalidate(r.Context(), h.listKey(), h.itemKey(id)); err != nil {
		h.env.logger().WarnContext(r.Context(), "cache invalidation failed", "resource", h.res.Kind.Plural, "id", id, "err", err)
	}
}

func (h *resourceHandler[E, PT]) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *catalog.ValidationError
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, CodeNotFound, h.res.Kind.Singular+" not found")
	case errors.As(err, &ve):
		middleware.WriteError(w, http.StatusBadRequest, CodeValidation, ve.Error())
	default:
		h.env.logger().ErrorContext(r.Context(), "repository call failed", "resource", h.res.Kind.Plural, "method", r.Method, "err", err)
		middleware.WriteError(w, http.StatusBadGateway, CodeUpstreamUnavailable, "upstream service unavailable")
	}
}
