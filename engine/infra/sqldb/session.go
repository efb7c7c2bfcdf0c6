// Package sqldb implements txexec.Session on a database/sql connection.
//
// The session pins a single *sql.Conn so that auto-commit mode, the open
// transaction and its savepoints all live on one server connection. The
// SQLite and MySQL drivers build on it.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/compozy/ordertx/engine/txexec"
)

var errAutoCommit = errors.New("sqldb: no transaction in auto-commit mode")

// Session is a txexec.Session over one pinned database/sql connection.
type Session struct {
	db         *sql.DB
	conn       *sql.Conn
	tx         *sql.Tx
	ownsDB     bool
	autoCommit bool
	savepoints *txexec.SavepointStack
}

// Option configures a Session.
type Option func(*Session)

// OwnDB makes Close also close the *sql.DB the session was created from.
func OwnDB() Option {
	return func(s *Session) { s.ownsDB = true }
}

// NewSession pins a connection from db. The session starts in auto-commit mode.
func NewSession(ctx context.Context, db *sql.DB, opts ...Option) (*Session, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqldb: acquire connection: %w", err)
	}
	s := &Session{
		db:         db,
		conn:       conn,
		autoCommit: true,
		savepoints: txexec.NewSavepointStack("sp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) AutoCommit() bool { return s.autoCommit }

// SetAutoCommit switches modes. Disabling starts a transaction; enabling
// commits the open one.
func (s *Session) SetAutoCommit(ctx context.Context, enabled bool) error {
	if enabled == s.autoCommit {
		return nil
	}
	if enabled {
		if s.tx != nil {
			if err := s.Commit(ctx); err != nil {
				return err
			}
		}
		s.autoCommit = true
		return nil
	}
	s.autoCommit = false
	if err := s.ensureTx(ctx); err != nil {
		s.autoCommit = true
		return err
	}
	return nil
}

func (s *Session) ensureTx(ctx context.Context) error {
	if s.autoCommit {
		return errAutoCommit
	}
	if s.tx != nil {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: begin: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *Session) Prepare(ctx context.Context, query string) (txexec.Statement, error) {
	var (
		stmt *sql.Stmt
		err  error
	)
	if s.autoCommit {
		stmt, err = s.conn.PrepareContext(ctx, query)
	} else {
		if err := s.ensureTx(ctx); err != nil {
			return nil, err
		}
		stmt, err = s.tx.PrepareContext(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	return &Statement{stmt: stmt}, nil
}

func (s *Session) Commit(_ context.Context) error {
	if s.autoCommit {
		return errAutoCommit
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	s.savepoints.Committed()
	return tx.Commit()
}

func (s *Session) Rollback(_ context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	s.savepoints.Aborted()
	return tx.Rollback()
}

func (s *Session) SetSavepoint(ctx context.Context) (txexec.Savepoint, error) {
	if err := s.ensureTx(ctx); err != nil {
		return nil, err
	}
	return s.savepoints.Mark(func(name string) (txexec.Savepoint, error) {
		_, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name)
		return nil, err
	})
}

func (s *Session) RollbackTo(ctx context.Context, sp txexec.Savepoint) error {
	return s.savepoints.RollbackTo(sp, func(name string, _ txexec.Savepoint) error {
		if s.tx == nil {
			return errAutoCommit
		}
		_, err := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
		return err
	})
}

func (s *Session) ReleaseSavepoint(ctx context.Context, sp txexec.Savepoint) error {
	return s.savepoints.Release(sp, func(name string, _ txexec.Savepoint) error {
		if s.tx == nil {
			return errAutoCommit
		}
		_, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	})
}

// Close rolls back any open transaction and returns the connection.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.Rollback(ctx); err != nil && !errors.Is(err, sql.ErrTxDone) {
		errs = append(errs, fmt.Errorf("sqldb: rollback on close: %w", err))
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, fmt.Errorf("sqldb: close connection: %w", err))
	}
	if s.ownsDB {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqldb: close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Statement wraps a prepared *sql.Stmt with bound arguments.
type Statement struct {
	stmt *sql.Stmt
	args []any
}

func (st *Statement) Bind(args ...any) error {
	st.args = append(st.args[:0], args...)
	return nil
}

func (st *Statement) ExecUpdate(ctx context.Context) (int64, error) {
	res, err := st.stmt.ExecContext(ctx, st.args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (st *Statement) ExecQuery(ctx context.Context) (txexec.Rows, error) {
	rows, err := st.stmt.QueryContext(ctx, st.args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (st *Statement) Close() error {
	return st.stmt.Close()
}
