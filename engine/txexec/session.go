package txexec

import "context"

// Session is a single logical database session.
// Implementations are not required to be safe for concurrent use.
type Session interface {
	// Prepare compiles query for later binding and execution.
	Prepare(ctx context.Context, query string) (Statement, error)
	// SetAutoCommit toggles implicit per-statement commit. Enabling it while a
	// transaction is open commits that transaction.
	SetAutoCommit(ctx context.Context, enabled bool) error
	AutoCommit() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// SetSavepoint marks the current point of the open transaction.
	SetSavepoint(ctx context.Context) (Savepoint, error)
	// RollbackTo undoes everything issued after sp. It fails with an
	// *InvalidSavepointError when sp is unknown, released or expired.
	RollbackTo(ctx context.Context, sp Savepoint) error
	ReleaseSavepoint(ctx context.Context, sp Savepoint) error
	Close(ctx context.Context) error
}

// Statement is a prepared statement handle.
type Statement interface {
	// Bind replaces the positional parameters used by the next execution.
	Bind(args ...any) error
	ExecUpdate(ctx context.Context) (int64, error)
	ExecQuery(ctx context.Context) (Rows, error)
	Close() error
}

// Rows is a forward-only result cursor.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Savepoint is an opaque marker inside an open transaction.
type Savepoint interface {
	Name() string
}

// Connector establishes sessions.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Session, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Session, error) {
	return f(ctx)
}
