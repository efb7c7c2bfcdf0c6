// Package txexectest provides a scriptable in-memory txexec.Session for
// exercising transaction control flow without a database.
package txexectest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/compozy/ordertx/engine/txexec"
)

// Call is one recorded session or statement interaction.
type Call struct {
	Op    string
	Query string
	Args  []any
}

func (c Call) String() string {
	if c.Query == "" {
		return c.Op
	}
	return c.Op + " " + c.Query
}

// Session records every call and fails on demand.
type Session struct {
	mu         sync.Mutex
	autoCommit bool
	inTx       bool
	closed     bool
	calls      []Call
	stmts      []*Statement
	results    map[string][][]any
	affected   map[string]int64
	failures   []failure
	savepoints *txexec.SavepointStack
}

type failure struct {
	op    string
	match string
	err   error
	times int
}

// NewSession returns a session in auto-commit mode.
func NewSession() *Session {
	return &Session{
		autoCommit: true,
		results:    make(map[string][][]any),
		affected:   make(map[string]int64),
		savepoints: txexec.NewSavepointStack("sp"),
	}
}

// FailOn makes the next call of op whose query contains match return err.
// Ops: prepare, bind, exec, query, set_autocommit, commit, rollback,
// savepoint, rollback_to, release, close_statement, close.
func (s *Session) FailOn(op, match string, err error) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{op: op, match: match, err: err, times: 1})
	return s
}

// FailAlways makes every call of op whose query contains match return err.
func (s *Session) FailAlways(op, match string, err error) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{op: op, match: match, err: err, times: -1})
	return s
}

// ReturnRows scripts the rows returned by queries containing match.
func (s *Session) ReturnRows(match string, rows ...[]any) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[match] = rows
	return s
}

// Affect scripts the row count reported by updates containing match.
// Unscripted updates report one row.
func (s *Session) Affect(match string, n int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.affected[match] = n
	return s
}

// Calls returns a copy of the recorded calls.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the recorded calls rendered as strings.
func (s *Session) Ops() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Statements returns every statement prepared so far.
func (s *Session) Statements() []*Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Statement(nil), s.stmts...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// InTransaction reports whether a transaction is open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx
}

func (s *Session) record(op, query string, args []any) error {
	s.calls = append(s.calls, Call{Op: op, Query: query, Args: args})
	for i := range s.failures {
		f := &s.failures[i]
		if f.op != op || f.times == 0 || !strings.Contains(query, f.match) {
			continue
		}
		if f.times > 0 {
			f.times--
		}
		return f.err
	}
	return nil
}

func (s *Session) Prepare(_ context.Context, query string) (txexec.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("prepare", query, nil); err != nil {
		return nil, err
	}
	stmt := &Statement{session: s, query: query}
	s.stmts = append(s.stmts, stmt)
	return stmt, nil
}

func (s *Session) SetAutoCommit(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("set_autocommit", fmt.Sprint(enabled), nil); err != nil {
		return err
	}
	if enabled == s.autoCommit {
		return nil
	}
	if enabled && s.inTx {
		s.calls = append(s.calls, Call{Op: "implicit_commit"})
		s.endTx()
	}
	s.autoCommit = enabled
	return nil
}

func (s *Session) AutoCommit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoCommit
}

func (s *Session) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("commit", "", nil); err != nil {
		return err
	}
	if s.autoCommit {
		return errors.New("txexectest: commit in auto-commit mode")
	}
	s.savepoints.Committed()
	s.endTx()
	return nil
}

func (s *Session) Rollback(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savepoints.Aborted()
	s.endTx()
	return s.record("rollback", "", nil)
}

func (s *Session) endTx() {
	s.inTx = false
}

// touch opens an implicit transaction when a statement runs in manual mode.
func (s *Session) touch() {
	if !s.autoCommit {
		s.inTx = true
	}
}

func (s *Session) SetSavepoint(context.Context) (txexec.Savepoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoCommit {
		return nil, errors.New("txexectest: savepoint in auto-commit mode")
	}
	s.touch()
	return s.savepoints.Mark(func(name string) (txexec.Savepoint, error) {
		return nil, s.record("savepoint", name, nil)
	})
}

func (s *Session) RollbackTo(_ context.Context, sp txexec.Savepoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savepoints.RollbackTo(sp, func(name string, _ txexec.Savepoint) error {
		return s.record("rollback_to", name, nil)
	})
}

func (s *Session) ReleaseSavepoint(_ context.Context, sp txexec.Savepoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savepoints.Release(sp, func(name string, _ txexec.Savepoint) error {
		return s.record("release", name, nil)
	})
}

func (s *Session) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("close", "", nil); err != nil {
		return err
	}
	s.closed = true
	return nil
}

// Statement is a recorded prepared statement.
type Statement struct {
	session *Session
	query   string
	args    []any
	closed  bool
}

// Query returns the statement text.
func (st *Statement) Query() string { return st.query }

// Closed reports whether the handle was released.
func (st *Statement) Closed() bool {
	st.session.mu.Lock()
	defer st.session.mu.Unlock()
	return st.closed
}

func (st *Statement) Bind(args ...any) error {
	st.session.mu.Lock()
	defer st.session.mu.Unlock()
	if err := st.session.record("bind", st.query, args); err != nil {
		return err
	}
	st.args = append([]any(nil), args...)
	return nil
}

func (st *Statement) ExecUpdate(context.Context) (int64, error) {
	st.session.mu.Lock()
	defer st.session.mu.Unlock()
	if st.closed {
		return 0, errors.New("txexectest: statement closed")
	}
	if err := st.session.record("exec", st.query, st.args); err != nil {
		return 0, err
	}
	st.session.touch()
	for match, n := range st.session.affected {
		if strings.Contains(st.query, match) {
			return n, nil
		}
	}
	return 1, nil
}

func (st *Statement) ExecQuery(context.Context) (txexec.Rows, error) {
	st.session.mu.Lock()
	defer st.session.mu.Unlock()
	if st.closed {
		return nil, errors.New("txexectest: statement closed")
	}
	if err := st.session.record("query", st.query, st.args); err != nil {
		return nil, err
	}
	st.session.touch()
	var data [][]any
	for match, rows := range st.session.results {
		if strings.Contains(st.query, match) {
			data = rows
			break
		}
	}
	return &Rows{data: data, pos: -1}, nil
}

func (st *Statement) Close() error {
	st.session.mu.Lock()
	defer st.session.mu.Unlock()
	if err := st.session.record("close_statement", st.query, nil); err != nil {
		return err
	}
	st.closed = true
	return nil
}

// Rows iterates scripted result rows.
type Rows struct {
	data   [][]any
	pos    int
	closed bool
}

func (r *Rows) Next() bool {
	if r.closed || r.pos+1 >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

// Scan assigns the current row to dest, using sql.Scanner-style Scan
// methods when dest provides one.
func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return errors.New("txexectest: scan without row")
	}
	row := r.data[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("txexectest: expected %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		if scanner, ok := d.(interface{ Scan(any) error }); ok {
			if err := scanner.Scan(row[i]); err != nil {
				return err
			}
			continue
		}
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("txexectest: destination %d is not a pointer", i)
		}
		sv := reflect.ValueOf(row[i])
		if !sv.IsValid() || !sv.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("txexectest: cannot assign %T to %T", row[i], d)
		}
		dv.Elem().Set(sv)
	}
	return nil
}

func (r *Rows) Err() error { return nil }

func (r *Rows) Close() error {
	r.closed = true
	return nil
}
