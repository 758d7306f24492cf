// Package store persists fetched stock bundles in a local keyed table, one
// row per symbol, with idempotent upsert and point lookup.
package store

import (
	"context"
	"errors"

	"plotos/internal/domain"
)

// ErrNotFound is returned by Get when no row exists for the symbol.
var ErrNotFound = errors.New("store: symbol not found")

// ErrUnavailable marks a storage failure that persists after the busy-retry
// budget is exhausted. It is terminal for that symbol's write; the batch
// continues with the remaining symbols.
var ErrUnavailable = errors.New("store: unavailable")

// Entry pairs a symbol with its cached bundle.
type Entry struct {
	Symbol string
	Bundle domain.StockBundle
}

// StockStore persists and retrieves per-symbol stock bundles.
type StockStore interface {
	// Exists reports whether a row is cached for the symbol.
	Exists(ctx context.Context, symbol string) (bool, error)

	// Upsert inserts the bundle or fully replaces all value columns of the
	// existing row. The write is atomic per symbol.
	Upsert(ctx context.Context, symbol string, bundle *domain.StockBundle) error

	// Get returns the cached bundle, or ErrNotFound.
	Get(ctx context.Context, symbol string) (*domain.StockBundle, error)

	// ListAll returns every cached entry ordered by symbol.
	ListAll(ctx context.Context) ([]Entry, error)

	// Close releases the underlying database.
	Close() error
}
