// Package txexec runs groups of mutations as one atomic unit on a single
// database session.
//
// A Session is the storage collaborator: it prepares statements, toggles
// auto-commit and manages commit, rollback and savepoints. A Tx layers the
// transaction state machine on top of a Session
//
//	INIT -> ACTIVE -> {SAVEPOINT_SET -> ACTIVE}* -> {COMMITTED | ABORTED}
//
// and scopes every statement handle to the transaction, so Close releases
// all of them and restores auto-commit on every exit path. Executor owns the
// session lifecycle (Connect/Disconnect) and converts failures into a Result
// instead of letting them escape.
package txexec
