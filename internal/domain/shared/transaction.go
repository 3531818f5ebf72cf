package shared

import "context"

// TransactionManager runs fn inside one database transaction. Repositories
// called with the ctx passed to fn join that transaction; any returned error
// rolls back every write made through it.
type TransactionManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ScopeLocker serialises work on a named scope, e.g. one hash chain or one
// partner's open invoices. Acquire must be called with a transactional ctx;
// release is called by the owner after the transaction has finished.
type ScopeLocker interface {
	Acquire(ctx context.Context, scope string) (release func(), err error)
}
