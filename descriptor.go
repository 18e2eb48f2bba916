package datacache

import (
	"context"

	"github.com/google/uuid"
)

// Descriptor is a lightweight projection of one source record.
//
// Every descriptor type binds to exactly one source content type through
// ContentType; "" means the binding is undefined and base operations are
// no-ops. PopulateFrom is called once on a fresh value built by the
// collection's factory. Descriptors must round-trip through the
// Service's serializer: only exported fields survive, so state a
// descriptor keeps in unexported fields (a bound content type, a source
// handle) is zero on values read back from the cache.
type Descriptor[R any] interface {
	ID() uuid.UUID
	ContentType() string
	PopulateFrom(record R) error
	// ItemKey is the dictionary key of this descriptor.
	ItemKey() string
	// BaseQuery selects every live record of the content type.
	BaseQuery() Query[R]
}

// Query is a deferred, lazily executed source query.
type Query[R any] interface {
	Fetch(ctx context.Context) ([]R, error)
}

// QueryFunc adapts a function to Query.
type QueryFunc[R any] func(ctx context.Context) ([]R, error)

func (f QueryFunc[R]) Fetch(ctx context.Context) ([]R, error) { return f(ctx) }

// Records is a Query over an in-memory slice.
type Records[R any] []R

func (r Records[R]) Fetch(context.Context) ([]R, error) { return r, nil }
