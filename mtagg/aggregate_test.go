package mtagg_test

import (
	"testing"
	"time"

	"github.com/mtrace-dev/mtrace"
	"github.com/mtrace-dev/mtrace/mtagg"
	"github.com/mtrace-dev/mtrace/mttree"
)

type namedTracepoint struct{ name string }

func (n namedTracepoint) Name() string          { return n.name }
func (n namedTracepoint) DetailedName() string  { return n.name }
func (n namedTracepoint) MeasureWallTime() bool { return true }

var (
	tpA = namedTracepoint{name: "A"}
	tpB = namedTracepoint{name: "B"}
)

func statsFor(t *testing.T, stats []mtagg.TracepointStats, tp mtrace.Tracepoint) mtagg.TracepointStats {
	t.Helper()
	for _, s := range stats {
		if s.Tracepoint == tp {
			return s
		}
	}
	t.Fatalf("no stats for %v", tp)
	return mtagg.TracepointStats{}
}

// TestScenarioB follows spec.md §8 Scenario B: mutual recursion A -> B -> A
// -> B, ticking the clock once after every push and popping all four at the
// end, verifying
// that wall time is attributed only to the outermost occurrence of each
// tracepoint on its call path while callCount still counts every visit.
func TestScenarioB(t *testing.T) {
	clock := mttree.NewFakeClock()
	b := mttree.NewBuilder(clock)

	b.Lock()
	b.Push(tpA)
	clock.Advance(1)
	b.Push(tpB)
	clock.Advance(1)
	b.Push(tpA)
	clock.Advance(1)
	b.Push(tpB)
	clock.Advance(1)
	mustPop(t, b) // inner B
	mustPop(t, b) // inner A
	mustPop(t, b) // outer B
	mustPop(t, b) // outer A
	root := b.BorrowUpToDateTree()
	b.Unlock()

	stats := mtagg.ComputeFlatTracepointStats(root)

	a := statsFor(t, stats, tpA)
	if a.CallCount != 2 {
		t.Fatalf("A callCount = %d, want 2", a.CallCount)
	}
	if a.WallTime != 4*time.Nanosecond {
		t.Fatalf("A wallTime = %v, want 4ns (outermost A spans the whole sequence)", a.WallTime)
	}

	bStats := statsFor(t, stats, tpB)
	if bStats.CallCount != 2 {
		t.Fatalf("B callCount = %d, want 2", bStats.CallCount)
	}
	if bStats.WallTime != 3*time.Nanosecond {
		t.Fatalf("B wallTime = %v, want 3ns (outermost B spans from its first push to its pop)", bStats.WallTime)
	}
}

func mustPop(t *testing.T, b *mttree.Builder) {
	t.Helper()
	if _, err := b.Pop(); err != nil {
		t.Fatal(err)
	}
}

func TestComputeFlatTracepointStatsExcludesRoot(t *testing.T) {
	b := mttree.NewBuilder(mttree.NewFakeClock())
	b.Lock()
	b.Push(tpA)
	mustPop(t, b)
	root := b.BorrowUpToDateTree()
	b.Unlock()

	stats := mtagg.ComputeFlatTracepointStats(root)
	for _, s := range stats {
		if s.Tracepoint == mtrace.Root {
			t.Fatal("expected the synthetic root to be excluded from flat stats")
		}
	}
}

func TestComputeFlatTracepointStatsNoRecursion(t *testing.T) {
	clock := mttree.NewFakeClock()
	b := mttree.NewBuilder(clock)
	b.Lock()
	b.Push(tpA)
	b.Push(tpB)
	clock.Advance(3)
	mustPop(t, b)
	clock.Advance(2)
	mustPop(t, b)
	root := b.BorrowUpToDateTree()
	b.Unlock()

	stats := mtagg.ComputeFlatTracepointStats(root)
	a := statsFor(t, stats, tpA)
	bStats := statsFor(t, stats, tpB)
	if a.WallTime != 5*time.Nanosecond {
		t.Fatalf("A wallTime = %v, want 5ns", a.WallTime)
	}
	if bStats.WallTime != 3*time.Nanosecond {
		t.Fatalf("B wallTime = %v, want 3ns", bStats.WallTime)
	}
}

func TestEstimateTracingOverheadChargesMoreForArgStamped(t *testing.T) {
	b := mttree.NewBuilder(mttree.NewFakeClock())
	b.Lock()
	b.Push(tpA)
	mustPop(t, b)
	root := b.BorrowUpToDateTree()
	b.Unlock()
	plain := mtagg.EstimateTracingOverhead(root)

	backing := mtrace.NewMethodTracepoint(mtrace.MethodFQName{Class: "C", Method: "m"})
	stamped := mtrace.NewMethodTracepointWithArgs(backing, []string{"1"})

	b2 := mttree.NewBuilder(mttree.NewFakeClock())
	b2.Lock()
	b2.Push(stamped)
	mustPop(t, b2)
	root2 := b2.BorrowUpToDateTree()
	b2.Unlock()
	withArgs := mtagg.EstimateTracingOverhead(root2)

	if withArgs <= plain {
		t.Fatalf("expected an arg-stamped call to estimate higher overhead: %v vs %v", withArgs, plain)
	}
}
