package mttree

import (
	"fmt"
	"sync"
	"time"

	"github.com/mtrace-dev/mtrace"
)

// Builder turns a stream of push/pop events from a single goroutine into a
// call tree. All mutation happens on the owning goroutine; the lock exists
// only so a second goroutine can borrow a consistent snapshot or refund
// contention overhead without racing the owner.
//
// Builder does not itself guard against re-entrant push/pop from inside a
// hook call; that's Manager's busyFlag, one level up.
type Builder struct {
	mu sync.Mutex

	root    *Node
	current *Node

	clock    Clock
	overhead time.Duration
}

// NewBuilder returns a builder with a fresh, empty tree rooted at
// mtrace.Root, sampling from clock.
func NewBuilder(clock Clock) *Builder {
	root := newNode(nil, mtrace.Root)
	return &Builder{
		root:    root,
		current: root,
		clock:   clock,
	}
}

// Lock and Unlock expose the builder's mutex directly, for Manager, which
// needs to hold it across a borrow-and-read and to measure how long it
// waited for contended acquisitions (see SubtractOverhead).
func (b *Builder) Lock()   { b.mu.Lock() }
func (b *Builder) Unlock() { b.mu.Unlock() }

// TryLock reports whether the lock was acquired without blocking. Manager
// uses this to measure and refund contention: when TryLock fails, the
// caller times its wait on the subsequent Lock and passes that duration to
// SubtractOverhead once it has the lock.
func (b *Builder) TryLock() bool { return b.mu.TryLock() }

func (b *Builder) sampleLocked() time.Time {
	return b.clock.Now().Add(-b.overhead)
}

// Push records a call into tp beneath the current node. Must be called with
// the lock held.
func (b *Builder) Push(tp mtrace.Tracepoint) {
	b.pushLocked(tp)
}

func (b *Builder) pushLocked(tp mtrace.Tracepoint) {
	child := b.current.getOrInsertChild(tp)
	child.callCount++

	if tp.MeasureWallTime() {
		now := b.sampleLocked()
		child.startWallTime = now
		child.continueWallTime = now
		child.wallTimeMeasured = true
	} else {
		child.wallTimeMeasured = false
	}

	b.current = child
}

// Pop closes out the current node and moves current back to its parent. It
// returns the tracepoint that was popped. Must be called with the lock held.
//
// Pop itself never second-guesses which tracepoint is on top of the stack:
// the hook path (mthook.Hook.Leave) has no tracepoint to compare against,
// since bytecode emits a bare leave() call site. Callers that do have an
// expectation -- tests, and any future self-checking wrapper -- should use
// PopExpect instead.
func (b *Builder) Pop() (mtrace.Tracepoint, error) {
	child := b.current
	if child.parent == nil {
		return nil, &InvariantError{Reason: "pop called with the root as the current node"}
	}

	if child.wallTimeMeasured {
		now := b.sampleLocked()
		child.wallTime += now.Sub(child.continueWallTime)
		if d := now.Sub(child.startWallTime); d > child.maxWallTime {
			child.maxWallTime = d
		}
	}

	b.current = child.parent
	return child.tracepoint, nil
}

// PopExpect pops like Pop, but additionally requires the popped tracepoint
// to equal want, returning an InvariantError on mismatch. Must be called
// with the lock held.
func (b *Builder) PopExpect(want mtrace.Tracepoint) error {
	got, err := b.Pop()
	if err != nil {
		return err
	}
	if got != want {
		return &InvariantError{Reason: fmt.Sprintf("pop expected tracepoint %q but found %q on stack", want.DetailedName(), got.DetailedName())}
	}
	return nil
}

// SubtractOverhead adds d to a running counter subtracted from every future
// clock sample, refunding time a goroutine spent waiting on this builder's
// lock rather than doing real work. Must be called with the lock held.
func (b *Builder) SubtractOverhead(d time.Duration) {
	b.overhead += d
}

// BorrowUpToDateTree closes out the currently open call stack (so in-flight
// invocations contribute their elapsed time so far) and returns the root of
// the live tree, not a copy. The result is safe to read only while the
// caller continues to hold the lock. Must be called with the lock held.
func (b *Builder) BorrowUpToDateTree() *Node {
	now := b.sampleLocked()
	for n := b.current; n.parent != nil; n = n.parent {
		if !n.wallTimeMeasured {
			continue
		}
		n.wallTime += now.Sub(n.continueWallTime)
		if d := now.Sub(n.startWallTime); d > n.maxWallTime {
			n.maxWallTime = d
		}
		n.continueWallTime = now
	}
	return b.root
}

// Clear resets the tree to empty while preserving the currently-open call
// stack: it snapshots the chain of tracepoints from root to current, builds
// a fresh root, then replays a push for each of them so that measurement
// continues coherently from this point forward. Must be called with the
// lock held.
func (b *Builder) Clear() {
	var chain []mtrace.Tracepoint
	for n := b.current; n.parent != nil; n = n.parent {
		chain = append(chain, n.tracepoint)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	b.root = newNode(nil, mtrace.Root)
	b.current = b.root
	for _, tp := range chain {
		b.pushLocked(tp)
	}
}
