package txexec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConnected is returned when an operation runs before a successful Connect.
	ErrNotConnected = errors.New("txexec: session not connected")
	// ErrTxDone is returned when a statement runs after commit or rollback.
	ErrTxDone = errors.New("txexec: transaction already finished")
	// ErrInvalidSavepoint matches every *InvalidSavepointError.
	ErrInvalidSavepoint = errors.New("txexec: invalid savepoint")
)

// Op names the session call a StatementError came from.
type Op string

const (
	OpBegin      Op = "begin"
	OpPrepare    Op = "prepare"
	OpBind       Op = "bind"
	OpExecute    Op = "execute"
	OpQuery      Op = "query"
	OpScan       Op = "scan"
	OpSavepoint  Op = "savepoint"
	OpRollbackTo Op = "rollback_to_savepoint"
	OpRelease    Op = "release_savepoint"
	OpCommit     Op = "commit"
	OpRollback   Op = "rollback"
)

// ConnectionError reports a failure to connect or disconnect a session.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("txexec: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StatementError reports a prepare, bind or execution failure inside a
// transaction. It always leads to a full rollback.
type StatementError struct {
	Op    Op
	Query string
	Err   error
}

func (e *StatementError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("txexec: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("txexec: %s %q: %v", e.Op, e.Query, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// InvalidSavepointError reports a rollback or release against a savepoint
// that is unknown, was released, was rolled past, or whose transaction ended.
type InvalidSavepointError struct {
	Savepoint string
	Reason    string
}

func (e *InvalidSavepointError) Error() string {
	return fmt.Sprintf("txexec: invalid savepoint %q: %s", e.Savepoint, e.Reason)
}

func (e *InvalidSavepointError) Is(target error) bool {
	return target == ErrInvalidSavepoint
}

// CleanupError collects failures hit while releasing statement handles or
// restoring auto-commit. It never changes a transaction's outcome.
type CleanupError struct {
	Errs []error
}

func (e *CleanupError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return "txexec: cleanup: " + strings.Join(msgs, "; ")
}

func (e *CleanupError) Unwrap() []error { return e.Errs }

func statementError(op Op, query string, err error) error {
	if err == nil {
		return nil
	}
	var invalid *InvalidSavepointError
	if errors.As(err, &invalid) {
		return err
	}
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		return err
	}
	return &StatementError{Op: op, Query: query, Err: err}
}
