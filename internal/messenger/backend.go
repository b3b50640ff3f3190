package messenger

import (
	"context"
	"messenger/internal/storage"
)

// Backend is the store every component is constructed with.
// *storage.Store satisfies it.
type Backend interface {
	storage.Repository
	WithinTx(ctx context.Context, fn func(storage.Repository) error) error
}

// withinTx runs fn in a single transaction and classifies its failure
func withinTx(ctx context.Context, b Backend, op string, fn func(storage.Repository) error) error {
	return wrap(op, b.WithinTx(ctx, fn))
}

var _ Backend = (*storage.Store)(nil)
