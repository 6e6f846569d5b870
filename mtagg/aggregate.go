// Package mtagg derives flat, per-tracepoint statistics from a call tree,
// the cross-call-path view the UI's flat table shows alongside the
// hierarchical one.
package mtagg

import (
	"time"

	"github.com/mtrace-dev/mtrace"
	"github.com/mtrace-dev/mtrace/mttree"
)

// TracepointStats is one row of the flattened table: a tracepoint's totals
// across every call path that reached it.
type TracepointStats struct {
	Tracepoint  mtrace.Tracepoint
	CallCount   int64
	WallTime    time.Duration
	MaxWallTime time.Duration
}

// ComputeFlatTracepointStats walks root depth-first, accumulating callCount
// for every visit to a tracepoint but wall time only for the outermost
// occurrence on each call path, so self- and mutual-recursion never double
// count time. The synthetic root tracepoint is excluded from the result.
//
// Iteration order of the returned slice is the order each tracepoint was
// first encountered in the traversal, which keeps it deterministic for
// tests without imposing any particular sort on callers.
func ComputeFlatTracepointStats(root *mttree.Node) []TracepointStats {
	agg := map[mtrace.Tracepoint]*TracepointStats{}
	var order []mtrace.Tracepoint

	ancestors := map[mtrace.Tracepoint]bool{}
	var walk func(n *mttree.Node)
	walk = func(n *mttree.Node) {
		tp := n.Tracepoint()
		if tp != mtrace.Root {
			stats, ok := agg[tp]
			if !ok {
				stats = &TracepointStats{Tracepoint: tp}
				agg[tp] = stats
				order = append(order, tp)
			}
			stats.CallCount += n.CallCount()

			if !ancestors[tp] {
				stats.WallTime += n.WallTime()
				if n.MaxWallTime() > stats.MaxWallTime {
					stats.MaxWallTime = n.MaxWallTime()
				}
			}
		}

		wasAncestor := ancestors[tp]
		ancestors[tp] = true
		for _, child := range n.Children() {
			walk(child)
		}
		ancestors[tp] = wasAncestor
	}
	walk(root)

	out := make([]TracepointStats, len(order))
	for i, tp := range order {
		out[i] = *agg[tp]
	}
	return out
}

// Per-call overhead constants used only to produce a display estimate of
// tracing's own cost; they are not measurements, and carry no precision
// claim beyond "roughly this order of magnitude."
const (
	baseOverheadPerCall    = 50 * time.Nanosecond
	argsStampOverheadExtra = 120 * time.Nanosecond
)

// EstimateTracingOverhead sums a fixed per-call constant across every node
// in root, charging more for argument-stamped tracepoints, as a rough,
// for-display-only estimate of how much of the measured wall time is the
// tracer's own bookkeeping rather than the traced program's work.
func EstimateTracingOverhead(root *mttree.Node) time.Duration {
	var total time.Duration
	var walk func(n *mttree.Node)
	walk = func(n *mttree.Node) {
		if n.Tracepoint() != mtrace.Root {
			cost := baseOverheadPerCall
			if _, stamped := n.Tracepoint().(*mtrace.MethodTracepointWithArgs); stamped {
				cost += argsStampOverheadExtra
			}
			total += cost * time.Duration(n.CallCount())
		}
		for _, child := range n.Children() {
			walk(child)
		}
	}
	walk(root)
	return total
}
