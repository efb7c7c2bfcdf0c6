package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/compozy/ordertx/engine/txexec"
)

var (
	errAutoCommit      = errors.New("postgres: no transaction in auto-commit mode")
	errStatementClosed = errors.New("postgres: statement closed")
	errSessionClosed   = errors.New("postgres: session closed")
)

// Conn is the subset of a pgx connection the session drives.
// *pgxpool.Conn, *pgx.Conn and pgxmock all satisfy it.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Session is a txexec.Session bound to one pgx connection. Statements rely
// on pgx's statement cache for server-side preparation.
type Session struct {
	conn       Conn
	release    func()
	tx         pgx.Tx
	autoCommit bool
	closed     bool
	savepoints *txexec.SavepointStack
}

// NewSession wraps conn. release, when non-nil, runs once on Close.
func NewSession(conn Conn, release func()) *Session {
	return &Session{
		conn:       conn,
		release:    release,
		autoCommit: true,
		savepoints: txexec.NewSavepointStack("sp"),
	}
}

func (s *Session) AutoCommit() bool { return s.autoCommit }

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
	if _, err := s.querier(ctx); err != nil {
		s.autoCommit = true
		return err
	}
	return nil
}

// querier returns the open transaction in manual mode, starting one when
// needed, and the bare connection otherwise.
func (s *Session) querier(ctx context.Context) (querier, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	if s.autoCommit {
		return s.conn, nil
	}
	if s.tx == nil {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("postgres: begin: %w", err)
		}
		s.tx = tx
	}
	return s.tx, nil
}

func (s *Session) Prepare(_ context.Context, query string) (txexec.Statement, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	return &Statement{session: s, query: query}, nil
}

func (s *Session) Commit(ctx context.Context) error {
	if s.autoCommit {
		return errAutoCommit
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	s.savepoints.Committed()
	return tx.Commit(ctx)
}

func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	s.savepoints.Aborted()
	return tx.Rollback(ctx)
}

func (s *Session) SetSavepoint(ctx context.Context) (txexec.Savepoint, error) {
	if s.autoCommit {
		return nil, errAutoCommit
	}
	q, err := s.querier(ctx)
	if err != nil {
		return nil, err
	}
	return s.savepoints.Mark(func(name string) (txexec.Savepoint, error) {
		_, err := q.Exec(ctx, "SAVEPOINT "+name)
		return nil, err
	})
}

func (s *Session) RollbackTo(ctx context.Context, sp txexec.Savepoint) error {
	return s.savepoints.RollbackTo(sp, func(name string, _ txexec.Savepoint) error {
		if s.tx == nil {
			return errAutoCommit
		}
		_, err := s.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name)
		return err
	})
}

func (s *Session) ReleaseSavepoint(ctx context.Context, sp txexec.Savepoint) error {
	return s.savepoints.Release(sp, func(name string, _ txexec.Savepoint) error {
		if s.tx == nil {
			return errAutoCommit
		}
		_, err := s.tx.Exec(ctx, "RELEASE SAVEPOINT "+name)
		return err
	})
}

// Close rolls back any open transaction and releases the connection.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	err := s.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		err = nil
	}
	s.closed = true
	if s.release != nil {
		s.release()
	}
	if err != nil {
		return fmt.Errorf("postgres: rollback on close: %w", err)
	}
	return nil
}

// Statement is a parameterized query bound to its session.
type Statement struct {
	session *Session
	query   string
	args    []any
	closed  bool
}

func (st *Statement) Bind(args ...any) error {
	if st.closed {
		return errStatementClosed
	}
	st.args = append(st.args[:0], args...)
	return nil
}

func (st *Statement) ExecUpdate(ctx context.Context) (int64, error) {
	if st.closed {
		return 0, errStatementClosed
	}
	q, err := st.session.querier(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := q.Exec(ctx, st.query, st.args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (st *Statement) ExecQuery(ctx context.Context) (txexec.Rows, error) {
	if st.closed {
		return nil, errStatementClosed
	}
	q, err := st.session.querier(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, st.query, st.args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (st *Statement) Close() error {
	st.closed = true
	st.args = nil
	return nil
}

// Rows adapts pgx.Rows to txexec.Rows.
type Rows struct {
	rows pgx.Rows
}

func (r *Rows) Next() bool             { return r.rows.Next() }
func (r *Rows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *Rows) Err() error             { return r.rows.Err() }

func (r *Rows) Close() error {
	r.rows.Close()
	return r.rows.Err()
}
