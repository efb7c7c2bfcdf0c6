package txexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/compozy/ordertx/pkg/logger"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	defaultConnectAttempts = 1
	defaultConnectBackoff  = 100 * time.Millisecond
)

// TxFunc is the body of an atomic operation. Returning an error aborts the
// whole transaction.
type TxFunc func(ctx context.Context, tx *Tx) error

// Executor owns one session and runs atomic operations on it, one at a time.
type Executor struct {
	connector       Connector
	metrics         *Metrics
	connectAttempts int
	connectBackoff  time.Duration

	mu      sync.Mutex
	session Session
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records every Run in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithConnectRetry makes Connect try up to attempts times with exponential
// backoff starting at backoff.
func WithConnectRetry(attempts int, backoff time.Duration) Option {
	return func(e *Executor) {
		if attempts > 0 {
			e.connectAttempts = attempts
		}
		if backoff > 0 {
			e.connectBackoff = backoff
		}
	}
}

// NewExecutor returns an unconnected executor.
func NewExecutor(connector Connector, opts ...Option) *Executor {
	e := &Executor{
		connector:       connector,
		connectAttempts: defaultConnectAttempts,
		connectBackoff:  defaultConnectBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Connect acquires the session. On failure the executor stays unusable until
// a later Connect succeeds; the error is a *ConnectionError.
func (e *Executor) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	log := logger.FromContext(ctx)
	if e.session != nil {
		return nil
	}
	if e.connector == nil {
		return &ConnectionError{Op: "connect", Err: errors.New("no connector configured")}
	}
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(e.connectAttempts-1), retry.NewExponential(e.connectBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		session, err := e.connector.Connect(ctx)
		if err != nil {
			log.Warn("Connect attempt failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		e.session = session
		return nil
	})
	if err != nil {
		connErr := &ConnectionError{Op: "connect", Err: err}
		log.Error("Failed to connect", "attempts", attempt, "error", err)
		return connErr
	}
	log.Info("Session connected", "attempts", attempt)
	return nil
}

// Disconnect closes the session. The executor is unusable afterwards until
// Connect is called again, even when closing fails.
func (e *Executor) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	session := e.session
	e.session = nil
	if err := session.Close(ctx); err != nil {
		log.Error("Failed to close session", "error", err)
		return &ConnectionError{Op: "disconnect", Err: err}
	}
	log.Info("Session closed")
	return nil
}

// Connected reports whether a session is held.
func (e *Executor) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Run executes fn inside one transaction: auto-commit is disabled, fn runs,
// and the unit is committed when fn succeeds or fully rolled back when it
// fails. Statement handles are released and auto-commit restored on every
// path. The returned Result is never nil; the error is Result.Err.
func (e *Executor) Run(ctx context.Context, operation string, fn TxFunc) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	res := &Result{
		OperationID: uuid.NewString(),
		Operation:   operation,
		Outcome:     OutcomeNotStarted,
	}
	log := logger.FromContext(ctx).With("operation", operation, "operation_id", res.OperationID)
	ctx = logger.ContextWithLogger(ctx, log)
	defer func() {
		res.Duration = time.Since(start)
		e.metrics.observe(res)
	}()

	if e.session == nil {
		res.Err = &ConnectionError{Op: "run", Err: ErrNotConnected}
		log.Error("Operation skipped", "error", res.Err)
		return res, res.Err
	}
	tx, err := Begin(ctx, e.session)
	if err != nil {
		res.Err = err
		log.Error("Failed to begin transaction", "error", err)
		if restoreErr := e.session.SetAutoCommit(ctx, true); restoreErr != nil {
			res.CleanupErr = &CleanupError{Errs: []error{fmt.Errorf("restore auto-commit: %w", restoreErr)}}
			log.Error("Transaction cleanup failed", "error", restoreErr)
		}
		return res, err
	}
	defer func() {
		if cerr := tx.Close(ctx); cerr != nil {
			res.CleanupErr = cerr
		}
	}()

	if err := invoke(ctx, tx, fn); err != nil {
		e.abort(ctx, tx, res, err)
		return res, res.Err
	}
	if err := tx.Commit(ctx); err != nil {
		e.abort(ctx, tx, res, err)
		return res, res.Err
	}
	res.Outcome = OutcomeCommitted
	res.PartialRollback = tx.PartialRollback()
	log.Info("Transaction committed", "partial_rollback", res.PartialRollback)
	return res, nil
}

func (e *Executor) abort(ctx context.Context, tx *Tx, res *Result, cause error) {
	log := logger.FromContext(ctx)
	res.Outcome = OutcomeAborted
	res.Err = cause
	if err := tx.Rollback(ctx); err != nil {
		log.Error("Rollback failed", "cause", cause, "error", err)
		res.Err = errors.Join(cause, err)
		return
	}
	log.Warn("Rolled back", "cause", cause)
}

// invoke runs fn and converts a panic into a StatementError so the
// transaction is still rolled back and cleaned up.
func invoke(ctx context.Context, tx *Tx, fn TxFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StatementError{Op: OpExecute, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn(ctx, tx)
}
