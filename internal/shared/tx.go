package shared

import "context"

// TxRunner runs fn inside one database transaction. Repositories called with
// the context handed to fn join that transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(context.Context) error) error
}

// NoTx runs fn directly. Used by tests with in-memory repositories.
type NoTx struct{}

// WithinTx calls fn with ctx.
func (NoTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
