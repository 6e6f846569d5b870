package mtrace

import (
	"sync"
	"sync/atomic"
)

// IDList is an append-only mapping from small, non-negative integers to
// values, typically canonical tracepoints. Append assigns indices in
// strictly increasing order starting at 0 and takes an internal lock; Get is
// lock-free and, for any index previously returned by Append, always
// observes a fully published value.
//
// The publication discipline is a release-store of the backing slice header
// after the element is written, paired with an acquire-load on the read
// side: Append only publishes the new header once the value is in place, and
// never mutates a slice it has already published, so concurrent Get calls
// never observe a partially-written element.
type IDList[T any] struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]T]
}

// NewIDList returns an empty IDList.
func NewIDList[T any]() *IDList[T] {
	l := &IDList[T]{}
	empty := make([]T, 0)
	l.snapshot.Store(&empty)
	return l
}

// Append adds v to the end of the list and returns its index. Safe for
// concurrent use.
func (l *IDList[T]) Append(v T) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := *l.snapshot.Load()
	idx := len(cur)

	// append reuses cur's backing array when it has spare capacity (the
	// common case, since Go grows capacity geometrically), which keeps this
	// amortized O(1); either way, nothing below is visible to readers until
	// the new header is stored.
	next := append(cur, v) //nolint:gocritic // intentional: see publication discipline above
	l.snapshot.Store(&next)

	return idx
}

// Get returns the value at index i. The index must have been previously
// returned by Append; behavior is undefined otherwise. Lock-free.
func (l *IDList[T]) Get(i int) T {
	s := *l.snapshot.Load()
	return s[i]
}

// Len returns the number of elements appended so far. Lock-free.
func (l *IDList[T]) Len() int {
	return len(*l.snapshot.Load())
}
