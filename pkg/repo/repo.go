// Package repo defines the generic Repository interface and a Neo4j-backed
// implementation behind a swappable session seam.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no node carries the ID.
var ErrNotFound = errors.New("not found")

// Repository is a generic keyed store.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Upsert(ctx context.Context, entity T) error
	Delete(ctx context.Context, id ID) error
	Exists(ctx context.Context, id ID) (bool, error)
}

// ListOpts controls pagination for List operations.
type ListOpts struct {
	Offset int
	Limit  int
}
