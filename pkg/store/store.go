// Package store exposes the uniform operational surface of an indexed
// entry store, plus unified configuration and a factory wiring the
// reference backends.
package store

import (
	"context"

	"github.com/stratadb/strata/pkg/csvstore"
	"github.com/stratadb/strata/pkg/sqlstore"
	"github.com/stratadb/strata/pkg/types"
)

// Store is the backend-agnostic surface over indexed entries. Reads answer
// nil for absent entries; Put submits entries with at-most-once semantics
// per key.
type Store interface {
	// Fields returns the schema's field names in declaration order.
	Fields(ctx context.Context) ([]string, error)

	// First returns the entry with the smallest index value, or nil.
	First(ctx context.Context) (types.Entry, error)

	// Last returns the entry with the largest index value, or nil.
	Last(ctx context.Context) (types.Entry, error)

	// FirstKey returns the smallest index value, or nil.
	FirstKey(ctx context.Context) (interface{}, error)

	// LastKey returns the largest index value, or nil.
	LastKey(ctx context.Context) (interface{}, error)

	// Get returns the entry stored under key, or nil.
	Get(ctx context.Context, key interface{}) (types.Entry, error)

	// Put stores entries. Submitting a key that is already stored keeps
	// exactly one entry for it; which occurrence wins is backend-defined.
	Put(ctx context.Context, entries ...types.Entry) error
}

// Both reference backends satisfy the surface.
var (
	_ Store = (*csvstore.Store)(nil)
	_ Store = (*sqlstore.Store)(nil)
)
