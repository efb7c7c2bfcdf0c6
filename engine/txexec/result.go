package txexec

import "time"

// Outcome is the final disposition of an atomic operation.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeAborted    Outcome = "aborted"
	OutcomeNotStarted Outcome = "not_started"
)

// Result describes how an atomic operation ended.
type Result struct {
	OperationID string
	Operation   string
	Outcome     Outcome
	// PartialRollback is set when the committed unit includes a rollback to
	// a savepoint.
	PartialRollback bool
	// Err is the failure that decided the outcome, if any.
	Err error
	// CleanupErr is reported independently of Err and Outcome.
	CleanupErr error
	Duration   time.Duration
}

// Committed reports whether the operation's transaction was committed.
func (r *Result) Committed() bool {
	return r != nil && r.Outcome == OutcomeCommitted
}
