package mttree

import "fmt"

// InvariantError reports a programmer error in the push/pop protocol: the
// builder must not attempt to "repair" its tree when one of these occurs, it
// must abort the current operation and let the caller log a diagnostic.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("call-tree invariant violation: %s", e.Reason)
}
