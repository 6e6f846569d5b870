// Package mthook is the static call site the transformer weaves into
// traced bytecode. It never throws, waits only on the calling goroutine's own
// builder lock while an aggregator holds it, and does no work beyond
// resolving a tracepoint and handing it to the call-tree manager.
package mthook

import (
	"fmt"
	"sync"

	"github.com/mtrace-dev/mtrace"
	"github.com/mtrace-dev/mtrace/mtconfig"
	"github.com/mtrace-dev/mtrace/mttree"
)

// Hook is the tracer's entry point from instrumented code. A single Hook is
// shared by every traced method in the process.
type Hook struct {
	config  *mtconfig.TraceConfig
	manager *mttree.Manager

	argsCache sync.Map // argsCacheKey -> *mtrace.MethodTracepointWithArgs
}

// NewHook builds a hook backed by the given trace config (for resolving
// method IDs to canonical tracepoints) and call-tree manager (for recording
// enter/leave events).
func NewHook(config *mtconfig.TraceConfig, manager *mttree.Manager) *Hook {
	return &Hook{config: config, manager: manager}
}

// Enter is invoked by a static call site at the top of a traced method.
// methodID identifies the canonical tracepoint; args, when non-nil, carries
// the already-filtered, already-boxed parameter values the transformer
// decided to capture for this call, in captured-index order. A nil args
// (not merely an empty slice) means "no arguments were requested for this
// call site" and Enter avoids allocating a wrapper tracepoint at all.
//
// Enter never panics: an unresolvable methodID (which should be impossible,
// since the method-ID table publishes an entry before any bytecode
// referencing it can run) is treated as a silent no-op rather than a crash
// in the traced program.
func (h *Hook) Enter(methodID int32, args []any) {
	tp := h.config.GetMethodTracepoint(int(methodID))
	if tp == nil {
		return
	}

	var effective mtrace.Tracepoint = tp
	if args != nil {
		strs := make([]string, len(args))
		for i, a := range args {
			strs[i] = fmt.Sprint(a)
		}
		effective = h.internedWithArgs(tp, strs)
	}

	h.manager.Enter(effective)
}

// Leave is invoked at every exit point of a traced method (normal return and
// the method-wide unwinding handler alike).
func (h *Hook) Leave() {
	h.manager.Leave()
}

type argsCacheKey struct {
	tp      *mtrace.MethodTracepoint
	argsKey string
}

// internedWithArgs returns the canonical MethodTracepointWithArgs for
// (tp, args), creating and caching one on first use. Interning matters
// because Tracepoint is used as a call-tree child-map key by ==; without it,
// two calls with identical captured arguments would needlessly create
// distinct sibling nodes instead of accumulating into one.
func (h *Hook) internedWithArgs(tp *mtrace.MethodTracepoint, args []string) *mtrace.MethodTracepointWithArgs {
	mtwa := mtrace.NewMethodTracepointWithArgs(tp, args)
	key := argsCacheKey{tp: tp, argsKey: mtwa.ArgsKey()}

	if v, ok := h.argsCache.Load(key); ok {
		return v.(*mtrace.MethodTracepointWithArgs)
	}
	actual, _ := h.argsCache.LoadOrStore(key, mtwa)
	return actual.(*mtrace.MethodTracepointWithArgs)
}
