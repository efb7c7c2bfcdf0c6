package txexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/ordertx/pkg/logger"
)

// State is the lifecycle position of a Tx.
type State int

const (
	StateInit State = iota
	StateActive
	StateSavepointSet
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateActive:
		return "ACTIVE"
	case StateSavepointSet:
		return "SAVEPOINT_SET"
	case StateCommitted:
		return "COMMITTED"
	case StateAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further statements may run.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAborted
}

// Tx is one transaction on a Session. A Tx is not safe for concurrent use.
type Tx struct {
	session    Session
	log        logger.Logger
	state      State
	stmts      []*txStatement
	savepoints *SavepointStack
	partial    bool
	closed     bool
}

// Begin disables auto-commit on session and returns an ACTIVE transaction.
func Begin(ctx context.Context, session Session) (*Tx, error) {
	if session == nil {
		return nil, ErrNotConnected
	}
	tx := &Tx{
		session:    session,
		log:        logger.FromContext(ctx),
		state:      StateInit,
		savepoints: NewSavepointStack("tx_sp"),
	}
	if err := session.SetAutoCommit(ctx, false); err != nil {
		return nil, statementError(OpBegin, "", err)
	}
	tx.state = StateActive
	tx.log.Debug("Transaction started")
	return tx, nil
}

// State returns the current lifecycle state.
func (tx *Tx) State() State { return tx.state }

// PartialRollback reports whether a rollback to a savepoint happened.
func (tx *Tx) PartialRollback() bool { return tx.partial }

func (tx *Tx) ensureOpen() error {
	if tx.closed || tx.state.Terminal() {
		return fmt.Errorf("%w (%s)", ErrTxDone, tx.state)
	}
	return nil
}

// Prepare compiles query on the session. The handle belongs to tx and is
// released by Close.
func (tx *Tx) Prepare(ctx context.Context, query string) (Statement, error) {
	if err := tx.ensureOpen(); err != nil {
		return nil, &StatementError{Op: OpPrepare, Query: query, Err: err}
	}
	inner, err := tx.session.Prepare(ctx, query)
	if err != nil {
		return nil, statementError(OpPrepare, query, err)
	}
	stmt := &txStatement{tx: tx, inner: inner, query: query}
	tx.stmts = append(tx.stmts, stmt)
	tx.state = StateActive
	return stmt, nil
}

// Savepoint marks the current point of the transaction.
func (tx *Tx) Savepoint(ctx context.Context) (Savepoint, error) {
	if err := tx.ensureOpen(); err != nil {
		return nil, &StatementError{Op: OpSavepoint, Err: err}
	}
	sp, err := tx.savepoints.Mark(func(string) (Savepoint, error) {
		return tx.session.SetSavepoint(ctx)
	})
	if err != nil {
		return nil, statementError(OpSavepoint, "", err)
	}
	tx.state = StateSavepointSet
	tx.log.Debug("Savepoint set", "savepoint", sp.Name())
	return sp, nil
}

// RollbackTo discards everything issued after sp. sp remains usable; later
// savepoints are invalidated. Using a savepoint of a finished transaction,
// or one already rolled past or released, fails with *InvalidSavepointError.
func (tx *Tx) RollbackTo(ctx context.Context, sp Savepoint) error {
	if tx.state.Terminal() {
		name := "<nil>"
		if sp != nil {
			name = sp.Name()
		}
		return &InvalidSavepointError{Savepoint: name, Reason: "transaction already " + tx.state.String()}
	}
	err := tx.savepoints.RollbackTo(sp, func(_ string, inner Savepoint) error {
		return tx.session.RollbackTo(ctx, inner)
	})
	if err != nil {
		return statementError(OpRollbackTo, "", err)
	}
	tx.partial = true
	tx.state = StateActive
	tx.log.Info("Rolled back to savepoint", "savepoint", sp.Name())
	return nil
}

// ReleaseSavepoint removes sp and every later savepoint without undoing work.
func (tx *Tx) ReleaseSavepoint(ctx context.Context, sp Savepoint) error {
	if tx.state.Terminal() {
		name := "<nil>"
		if sp != nil {
			name = sp.Name()
		}
		return &InvalidSavepointError{Savepoint: name, Reason: "transaction already " + tx.state.String()}
	}
	err := tx.savepoints.Release(sp, func(_ string, inner Savepoint) error {
		return tx.session.ReleaseSavepoint(ctx, inner)
	})
	if err != nil {
		return statementError(OpRelease, "", err)
	}
	tx.state = StateActive
	return nil
}

// Commit makes every mutation durable. On failure the transaction stays
// open so the caller can roll it back.
func (tx *Tx) Commit(ctx context.Context) error {
	if err := tx.ensureOpen(); err != nil {
		return &StatementError{Op: OpCommit, Err: err}
	}
	if err := tx.session.Commit(ctx); err != nil {
		return statementError(OpCommit, "", err)
	}
	tx.state = StateCommitted
	tx.savepoints.Committed()
	tx.log.Debug("Transaction committed")
	return nil
}

// Rollback discards every mutation of the transaction, including those
// before any savepoint. Rolling back an aborted transaction is a no-op.
func (tx *Tx) Rollback(ctx context.Context) error {
	switch tx.state {
	case StateAborted:
		return nil
	case StateCommitted:
		return &StatementError{Op: OpRollback, Err: fmt.Errorf("%w (%s)", ErrTxDone, tx.state)}
	}
	err := tx.session.Rollback(ctx)
	tx.state = StateAborted
	tx.savepoints.Aborted()
	if err != nil {
		return statementError(OpRollback, "", err)
	}
	return nil
}

// Close releases every statement handle in preparation order and then
// restores auto-commit. A transaction that is still open is rolled back
// first. Close runs once; later calls return nil. The returned error is a
// *CleanupError and never alters the transaction outcome.
func (tx *Tx) Close(ctx context.Context) error {
	if tx.closed {
		return nil
	}
	var errs []error
	if !tx.state.Terminal() {
		tx.log.Warn("Transaction still open at cleanup, rolling back", "state", tx.state.String())
		if err := tx.Rollback(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	tx.closed = true
	for _, stmt := range tx.stmts {
		if err := stmt.close(); err != nil {
			errs = append(errs, fmt.Errorf("close statement %q: %w", stmt.query, err))
		}
	}
	if err := tx.session.SetAutoCommit(ctx, true); err != nil {
		errs = append(errs, fmt.Errorf("restore auto-commit: %w", err))
	}
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		tx.log.Error("Transaction cleanup failed", "error", err)
	}
	return &CleanupError{Errs: errs}
}

type txStatement struct {
	tx     *Tx
	inner  Statement
	query  string
	closed bool
}

func (s *txStatement) Bind(args ...any) error {
	if err := s.tx.ensureOpen(); err != nil {
		return &StatementError{Op: OpBind, Query: s.query, Err: err}
	}
	return statementError(OpBind, s.query, s.inner.Bind(args...))
}

func (s *txStatement) ExecUpdate(ctx context.Context) (int64, error) {
	if err := s.tx.ensureOpen(); err != nil {
		return 0, &StatementError{Op: OpExecute, Query: s.query, Err: err}
	}
	n, err := s.inner.ExecUpdate(ctx)
	if err != nil {
		return 0, statementError(OpExecute, s.query, err)
	}
	s.tx.state = StateActive
	return n, nil
}

func (s *txStatement) ExecQuery(ctx context.Context) (Rows, error) {
	if err := s.tx.ensureOpen(); err != nil {
		return nil, &StatementError{Op: OpQuery, Query: s.query, Err: err}
	}
	rows, err := s.inner.ExecQuery(ctx)
	if err != nil {
		return nil, statementError(OpQuery, s.query, err)
	}
	s.tx.state = StateActive
	return rows, nil
}

// Close on a transaction-owned statement is deferred to Tx.Close.
func (s *txStatement) Close() error { return nil }

func (s *txStatement) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.inner.Close()
}

// IsStatementError reports whether err carries a *StatementError.
func IsStatementError(err error) bool {
	var stmtErr *StatementError
	return errors.As(err, &stmtErr)
}
