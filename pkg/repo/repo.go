// Package repo defines a generic repository over labelled Neo4j nodes.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no node has the requested id.
var ErrNotFound = errors.New("repo: not found")

// Repository is a generic CRUD interface.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Create(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination and filtering for List. Filter keys are
// property names compared for equality.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}
