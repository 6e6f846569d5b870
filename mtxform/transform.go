// Package mtxform computes what a class's bytecode needs rewritten to wire
// it into the tracer, and hands that plan to a pluggable BytecodeWeaver. The
// concrete bytecode library is an external collaborator this package never
// names: a host embedding mtrace against a real bytecode engine supplies its
// own BytecodeWeaver.
package mtxform

import (
	"fmt"

	"github.com/mtrace-dev/mtrace"
	"github.com/mtrace-dev/mtrace/mtconfig"
)

// MethodRef is the per-method reflection the transformer needs beyond a bare
// MethodFQName.
type MethodRef interface {
	FQName() mtrace.MethodFQName
	ParamCount() int
	IsConstructor() bool

	// PreSuperControlFlow reports whether this constructor has control flow
	// before its superclass constructor call that makes it impossible to
	// place the entry hook safely (only meaningful when IsConstructor is
	// true). A true result causes the method to be skipped rather than
	// instrumented with a mismatched enter/leave pair.
	PreSuperControlFlow() bool
}

// ClassRef is the per-class reflection the transformer needs beyond what
// mtconfig.Matcher consumes.
type ClassRef interface {
	ClassName() string
	Modifiable() bool
	Methods() []MethodRef
}

// AsClassInfo adapts a ClassRef down to the narrower shape mtconfig.Matcher
// consumes, so the same reflection object can answer both "might this class
// need instrumenting" (via mtconfig) and "how do I instrument it" (via this
// package).
func AsClassInfo(cr ClassRef) mtconfig.ClassInfo {
	return classInfoAdapter{cr}
}

type classInfoAdapter struct{ cr ClassRef }

func (a classInfoAdapter) ClassName() string { return a.cr.ClassName() }

func (a classInfoAdapter) Methods() []mtrace.MethodFQName {
	methods := a.cr.Methods()
	out := make([]mtrace.MethodFQName, len(methods))
	for i, m := range methods {
		out[i] = m.FQName()
	}
	return out
}

// WeaveInstruction describes, for a single method, the hook call the weaver
// must insert at entry, every normal exit, and the exceptional-exit handler.
type WeaveInstruction struct {
	Method   MethodRef
	MethodID int

	// CaptureParamIndices lists the parameter indices to box and pass to
	// enter, in request order, already filtered to this method's actual
	// parameter count. Nil (not merely empty) means "capture nothing",
	// matching the "no args, not an empty array" edge case.
	CaptureParamIndices []int

	// InsertAfterSuperConstructor is true for constructors: the entry hook
	// goes immediately after the superclass constructor call returns, never
	// before.
	InsertAfterSuperConstructor bool
}

// SkipReason categorizes why a method or class was left uninstrumented, so
// callers can choose a WARN or ERROR log level per spec's error kinds.
type SkipReason int

const (
	// SkipNonModifiableClass means the host runtime reported the class
	// cannot be redefined at all. Logged at WARN.
	SkipNonModifiableClass SkipReason = iota
	// SkipUnsafeConstructorPrologue means a constructor has control flow
	// before its super() call that the transformer cannot safely
	// instrument without risking a mismatched enter/leave pair.
	SkipUnsafeConstructorPrologue
)

func (r SkipReason) String() string {
	switch r {
	case SkipNonModifiableClass:
		return "non-modifiable class"
	case SkipUnsafeConstructorPrologue:
		return "unsafe constructor prologue"
	default:
		return "unknown"
	}
}

// SkippedMethod records one method the plan declined to instrument.
type SkippedMethod struct {
	Method MethodRef
	Reason SkipReason
}

// WeavePlan is the complete, class-level rewrite plan: which methods get a
// hook and how, and which were skipped and why.
type WeavePlan struct {
	Class        ClassRef
	Instructions []WeaveInstruction
	Skipped      []SkippedMethod
}

// ComputePlan resolves, for every method of cr, whether a live enabled trace
// request governs it, and if so what to capture. Resolving a method's
// config (even a disabled one) still memoizes its canonical tracepoint and
// method ID in cfg, per mtconfig.TraceConfig.GetMethodTraceData's contract.
func ComputePlan(cr ClassRef, cfg *mtconfig.TraceConfig) WeavePlan {
	plan := WeavePlan{Class: cr}

	for _, m := range cr.Methods() {
		methodID, mcfg, ok := cfg.GetMethodTraceData(m.FQName())
		if !ok || !mcfg.Enabled {
			continue
		}

		if m.IsConstructor() && m.PreSuperControlFlow() {
			plan.Skipped = append(plan.Skipped, SkippedMethod{Method: m, Reason: SkipUnsafeConstructorPrologue})
			continue
		}

		plan.Instructions = append(plan.Instructions, WeaveInstruction{
			Method:                      m,
			MethodID:                    methodID,
			CaptureParamIndices:         filterParamIndices(mcfg.TracedParams, m.ParamCount()),
			InsertAfterSuperConstructor: m.IsConstructor(),
		})
	}

	return plan
}

// filterParamIndices keeps only indices within [0, paramCount), preserving
// requested order, and returns nil (not an empty, non-nil slice) when
// nothing survives, so capture-nothing and capture-everything-filtered-out
// are indistinguishable to the hook, which is the intended "no args" state.
func filterParamIndices(indices []int, paramCount int) []int {
	var out []int
	for _, i := range indices {
		if i >= 0 && i < paramCount {
			out = append(out, i)
		}
	}
	return out
}

// BytecodeWeaver is the external collaborator that actually rewrites class
// bytes. mtxform never assumes a concrete bytecode representation; a real
// deployment supplies an implementation backed by whatever class-file
// library the host embeds.
type BytecodeWeaver interface {
	// Weave rewrites raw according to plan, returning the new class bytes.
	Weave(raw []byte, plan []WeaveInstruction) ([]byte, error)
}

// NonModifiableClassError reports that the host runtime will not allow this
// class to be redefined. Callers should log it at WARN and move on, per
// spec's "non-modifiable classes are skipped with a warning, not a fatal
// error."
type NonModifiableClassError struct {
	ClassName string
}

func (e *NonModifiableClassError) Error() string {
	return fmt.Sprintf("class %s is not modifiable", e.ClassName)
}

// Transform computes cr's weave plan and, if any method needs instrumenting,
// asks weaver to rewrite raw. If cr is not modifiable, it returns raw
// unchanged with a NonModifiableClassError. If weaving fails, it also
// returns raw unchanged, alongside the error, so a caller can always apply
// the result without checking err first.
func Transform(cr ClassRef, raw []byte, cfg *mtconfig.TraceConfig, weaver BytecodeWeaver) ([]byte, WeavePlan, error) {
	if !cr.Modifiable() {
		return raw, WeavePlan{Class: cr}, &NonModifiableClassError{ClassName: cr.ClassName()}
	}

	plan := ComputePlan(cr, cfg)
	if len(plan.Instructions) == 0 {
		return raw, plan, nil
	}

	out, err := weaver.Weave(raw, plan.Instructions)
	if err != nil {
		return raw, plan, fmt.Errorf("weave %s: %w", cr.ClassName(), err)
	}
	return out, plan, nil
}
