package mtrace

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Tracepoint is the identity of something that can be measured: either the
// synthetic root of every call tree, a canonical method, or a method stamped
// with a particular set of captured argument values.
//
// Implementations must be comparable with ==, so they can be used as call-tree
// child-map keys without boxing.
type Tracepoint interface {
	// Name returns a short display name, suitable for a tree view label.
	Name() string

	// DetailedName returns a fuller description: class, method, and a summary
	// of argument types (for method tracepoints) or captured values (for
	// argument-stamped tracepoints).
	DetailedName() string

	// MeasureWallTime reports whether call-tree builders should record wall
	// time for invocations of this tracepoint. It's always true for the root;
	// argument-stamped tracepoints defer to their backing method tracepoint.
	MeasureWallTime() bool
}

//
//
//

// MethodFQName identifies a method independent of any particular class
// loader generation: the owning class's fully-qualified name, the method
// name, and its descriptor in the host runtime's method-descriptor grammar.
type MethodFQName struct {
	Class      string
	Method     string
	Descriptor string
}

// String renders the method fully-qualified name as "Class#method(desc)".
func (m MethodFQName) String() string {
	return fmt.Sprintf("%s#%s%s", m.Class, m.Method, m.Descriptor)
}

//
//
//

type rootTracepoint struct{}

// Root is the singleton tracepoint representing the synthetic root of every
// per-goroutine call tree. It is never instrumented and never popped.
var Root Tracepoint = rootTracepoint{}

func (rootTracepoint) Name() string          { return "[root]" }
func (rootTracepoint) DetailedName() string  { return "[root]" }
func (rootTracepoint) MeasureWallTime() bool { return true }

//
//
//

// MethodTracepoint is the canonical, immutable-identity representation of a
// traced method. Exactly one instance exists per MethodFQName; the mutable
// measureWallTime bit is updated by mtconfig.TraceConfig as trace requests
// are resolved, and read on every call-tree push.
type MethodTracepoint struct {
	fqName          MethodFQName
	measureWallTime atomic.Bool
}

var _ Tracepoint = (*MethodTracepoint)(nil)

// NewMethodTracepoint constructs a canonical method tracepoint. Callers that
// need the one-per-method invariant should go through mtconfig.TraceConfig,
// which memoizes these; this constructor is exported for tests and for
// callers building their own registries.
func NewMethodTracepoint(fq MethodFQName) *MethodTracepoint {
	return &MethodTracepoint{fqName: fq}
}

func (mt *MethodTracepoint) FQName() MethodFQName { return mt.fqName }

func (mt *MethodTracepoint) Name() string {
	return mt.fqName.Method
}

func (mt *MethodTracepoint) DetailedName() string {
	return mt.fqName.String()
}

func (mt *MethodTracepoint) MeasureWallTime() bool {
	return mt.measureWallTime.Load()
}

// SetMeasureWallTime updates the mutable wall-time measurement flag. Called
// by mtconfig.TraceConfig.GetMethodTraceData on every lookup, so that the
// most recently resolved config always wins by the next retransform.
func (mt *MethodTracepoint) SetMeasureWallTime(v bool) {
	mt.measureWallTime.Store(v)
}

//
//
//

// MethodTracepointWithArgs wraps a canonical method tracepoint together with
// an ordered list of stringified argument values captured at a particular
// call. Two instances are equal (structurally, and via ==, since instances
// are interned) iff their backing tracepoint and argument strings match; see
// mthook.Hook for the interning cache that provides this.
type MethodTracepointWithArgs struct {
	backing *MethodTracepoint
	argsKey string   // interning/equality key: args joined with a NUL separator
	args    []string // for display only
}

var _ Tracepoint = (*MethodTracepointWithArgs)(nil)

// NewMethodTracepointWithArgs wraps backing with the given stringified
// argument values, in the order they were captured. With a nil or empty args
// slice the result reports the same Name, DetailedName and MeasureWallTime as
// backing, but it is still a distinct Tracepoint value, so it gets its own
// call-tree node; callers should not call this constructor at all when there
// are no captured arguments.
func NewMethodTracepointWithArgs(backing *MethodTracepoint, args []string) *MethodTracepointWithArgs {
	return &MethodTracepointWithArgs{
		backing: backing,
		argsKey: strings.Join(args, "\x00"),
		args:    args,
	}
}

func (mtwa *MethodTracepointWithArgs) Backing() *MethodTracepoint { return mtwa.backing }

func (mtwa *MethodTracepointWithArgs) Args() []string { return mtwa.args }

// ArgsKey returns the interning/equality key for (backing, args). It's
// exported so callers building their own interning cache (see mthook) don't
// need to re-derive the join logic.
func (mtwa *MethodTracepointWithArgs) ArgsKey() string { return mtwa.argsKey }

func (mtwa *MethodTracepointWithArgs) Name() string {
	return mtwa.backing.Name()
}

func (mtwa *MethodTracepointWithArgs) DetailedName() string {
	if len(mtwa.args) == 0 {
		return mtwa.backing.DetailedName()
	}
	return fmt.Sprintf("%s(%s)", mtwa.backing.DetailedName(), strings.Join(mtwa.args, ", "))
}

func (mtwa *MethodTracepointWithArgs) MeasureWallTime() bool {
	return mtwa.backing.MeasureWallTime()
}
