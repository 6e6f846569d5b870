package mttree

import (
	"sync"
	"sync/atomic"

	"github.com/mtrace-dev/mtrace"
	"github.com/mtrace-dev/mtrace/internal/mtgoid"
)

// perGoroutine pairs a builder with the busy flag that suppresses re-entry
// into this manager's own Enter/Leave machinery from the traced program's
// code. Only the owning goroutine ever touches busy, so it needs no
// synchronization of its own; the builder's mutex is a separate matter,
// protecting it against the background aggregator.
type perGoroutine struct {
	builder *Builder
	busy    bool
}

// Manager owns one Builder per goroutine that has ever called Enter or
// Leave, created lazily on first use. It is the re-entrancy boundary and the
// point where per-goroutine trees are merged into a single snapshot.
type Manager struct {
	clock     Clock
	registry  sync.Map // int64 goroutine id -> *perGoroutine
	onInvalid atomic.Pointer[func(error)]
}

// SetInvariantViolationHandler installs fn to be called, from whichever
// goroutine discovers it, whenever Leave detects a call-tree invariant
// violation. The default handler does nothing; the hook path must never
// throw or print synchronously into the traced program's own output, so a
// handler that blocks or panics is the caller's responsibility to avoid.
func (m *Manager) SetInvariantViolationHandler(fn func(error)) {
	m.onInvalid.Store(&fn)
}

func (m *Manager) reportInvalid(err error) {
	if fn := m.onInvalid.Load(); fn != nil {
		(*fn)(err)
	}
}

// NewManager constructs a manager and immediately warms it up with a
// synthetic enter/leave pair at the root tracepoint, on the calling
// goroutine, so that any lazily initialized machinery the hook path depends
// on (map bucket allocation, first-touch lock contention) is paid for before
// a real instrumented call relies on it. The warm-up call is cleared again
// before NewManager returns, so it never shows up in a snapshot.
func NewManager(clock Clock) *Manager {
	m := &Manager{clock: clock}
	m.Enter(mtrace.Root)
	m.Leave()
	m.ClearCallTrees()
	return m
}

func (m *Manager) builderFor(goid int64) *perGoroutine {
	if v, ok := m.registry.Load(goid); ok {
		return v.(*perGoroutine)
	}
	pg := &perGoroutine{builder: NewBuilder(m.clock)}
	actual, _ := m.registry.LoadOrStore(goid, pg)
	return actual.(*perGoroutine)
}

// acquireWithOverheadRefund takes b's lock, and if it was not immediately
// available, measures the wait and refunds it to b's clock so contention
// with the aggregator never shows up as traced wall time.
func (m *Manager) acquireWithOverheadRefund(b *Builder) {
	if b.TryLock() {
		return
	}
	waitStart := m.clock.Now()
	b.Lock()
	b.SubtractOverhead(m.clock.Now().Sub(waitStart))
}

// Enter records a call into tp on the calling goroutine's builder. A no-op
// if this goroutine is already inside an Enter or Leave call further up the
// stack (the pathological case of tracer-internal code that is itself
// instrumented).
func (m *Manager) Enter(tp mtrace.Tracepoint) {
	pg := m.builderFor(mtgoid.Current())
	if pg.busy {
		return
	}
	pg.busy = true
	m.acquireWithOverheadRefund(pg.builder)
	pg.builder.Push(tp)
	pg.builder.Unlock()
	pg.busy = false
}

// Leave pops the calling goroutine's builder. No-ops exactly when the paired
// Enter no-opped, by checking the same busy flag.
func (m *Manager) Leave() {
	pg := m.builderFor(mtgoid.Current())
	if pg.busy {
		return
	}
	pg.busy = true
	m.acquireWithOverheadRefund(pg.builder)
	_, err := pg.builder.Pop()
	pg.builder.Unlock()
	pg.busy = false
	if err != nil {
		m.reportInvalid(err)
	}
}

// GetCallTreeSnapshotAllThreadsMerged takes a consistent snapshot of every
// known builder and merges them into a freshly allocated tree. The result
// shares no state with any live builder.
func (m *Manager) GetCallTreeSnapshotAllThreadsMerged() *Node {
	merged := newNode(nil, mtrace.Root)
	m.registry.Range(func(_, v any) bool {
		pg := v.(*perGoroutine)
		pg.builder.Lock()
		mergeInto(merged, pg.builder.BorrowUpToDateTree())
		pg.builder.Unlock()
		return true
	})
	return merged
}

// ClearCallTrees resets every known builder's measurements while preserving
// each one's currently-open call stack.
func (m *Manager) ClearCallTrees() {
	m.registry.Range(func(_, v any) bool {
		pg := v.(*perGoroutine)
		pg.builder.Lock()
		pg.builder.Clear()
		pg.builder.Unlock()
		return true
	})
}

func mergeInto(dst, src *Node) {
	dst.callCount += src.callCount
	dst.wallTime += src.wallTime
	if src.maxWallTime > dst.maxWallTime {
		dst.maxWallTime = src.maxWallTime
	}
	for _, tp := range src.order {
		schild := src.children[tp]
		dchild := dst.getOrInsertChild(tp)
		mergeInto(dchild, schild)
	}
}
