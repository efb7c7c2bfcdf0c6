package txexec

import "fmt"

const (
	reasonUnknown    = "not created by this transaction"
	reasonRolledPast = "rolled back past"
	reasonReleased   = "released"
	reasonCommitted  = "transaction committed"
	reasonAborted    = "transaction rolled back"
)

type savepoint struct {
	name    string
	owner   *SavepointStack
	inner   Savepoint
	invalid string
}

func (s *savepoint) Name() string { return s.name }

// SavepointStack tracks the savepoints of one transaction in creation order.
// Session implementations use it to honor the savepoint contract; Tx uses
// it to validate handles before they reach the session.
type SavepointStack struct {
	prefix string
	seq    uint64
	live   []*savepoint
}

// NewSavepointStack returns a stack naming savepoints prefix_1, prefix_2, ...
func NewSavepointStack(prefix string) *SavepointStack {
	return &SavepointStack{prefix: prefix}
}

// Len returns the number of live savepoints.
func (s *SavepointStack) Len() int { return len(s.live) }

// Mark creates a savepoint. create receives the generated name and may
// return an inner handle (for example the session's own savepoint) whose
// name then replaces the generated one. Nothing is recorded when create fails.
func (s *SavepointStack) Mark(create func(name string) (Savepoint, error)) (Savepoint, error) {
	s.seq++
	name := fmt.Sprintf("%s_%d", s.prefix, s.seq)
	inner, err := create(name)
	if err != nil {
		return nil, err
	}
	sp := &savepoint{name: name, owner: s, inner: inner}
	if inner != nil {
		sp.name = inner.Name()
	}
	s.live = append(s.live, sp)
	return sp, nil
}

// RollbackTo validates sp, calls undo and, on success, invalidates every
// savepoint created after sp. sp itself stays valid.
func (s *SavepointStack) RollbackTo(sp Savepoint, undo func(name string, inner Savepoint) error) error {
	i, err := s.lookup(sp)
	if err != nil {
		return err
	}
	target := s.live[i]
	if err := undo(target.name, target.inner); err != nil {
		return err
	}
	s.invalidateFrom(i+1, reasonRolledPast)
	return nil
}

// Release validates sp, calls release and, on success, invalidates sp and
// every savepoint created after it.
func (s *SavepointStack) Release(sp Savepoint, release func(name string, inner Savepoint) error) error {
	i, err := s.lookup(sp)
	if err != nil {
		return err
	}
	target := s.live[i]
	if err := release(target.name, target.inner); err != nil {
		return err
	}
	s.invalidateFrom(i, reasonReleased)
	return nil
}

// Committed invalidates every live savepoint after a commit.
func (s *SavepointStack) Committed() { s.invalidateFrom(0, reasonCommitted) }

// Aborted invalidates every live savepoint after a full rollback.
func (s *SavepointStack) Aborted() { s.invalidateFrom(0, reasonAborted) }

func (s *SavepointStack) lookup(sp Savepoint) (int, error) {
	if sp == nil {
		return -1, &InvalidSavepointError{Savepoint: "<nil>", Reason: reasonUnknown}
	}
	handle, ok := sp.(*savepoint)
	if !ok || handle.owner != s {
		return -1, &InvalidSavepointError{Savepoint: sp.Name(), Reason: reasonUnknown}
	}
	if handle.invalid != "" {
		return -1, &InvalidSavepointError{Savepoint: handle.name, Reason: handle.invalid}
	}
	for i, live := range s.live {
		if live == handle {
			return i, nil
		}
	}
	return -1, &InvalidSavepointError{Savepoint: handle.name, Reason: reasonUnknown}
}

func (s *SavepointStack) invalidateFrom(i int, reason string) {
	for _, sp := range s.live[i:] {
		sp.invalid = reason
	}
	s.live = s.live[:i]
}
