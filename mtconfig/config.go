package mtconfig

import (
	"sync"
	"time"

	"github.com/mtrace-dev/mtrace"
)

// Config is the per-method tracing configuration resolved from a matching
// trace request.
type Config struct {
	// Enabled is false for requests appended by "untrace"; a method governed
	// by a disabled request is not instrumented.
	Enabled bool

	// CountOnly disables wall-time measurement for the method; only
	// callCount accumulates.
	CountOnly bool

	// TracedParams lists zero-based parameter indices whose values should be
	// captured on entry, in request order. Indices outside a given method's
	// actual parameter list are filtered out by the transformer, not here.
	TracedParams []int
}

// TraceRequest pairs a matcher with the configuration it applies. Requests
// are kept in an ordered, append-only list; for a given method, the most
// recently appended matching request wins. There is no deduplication: an
// identical request appended twice creates two entries, and simply makes the
// resolution a no-op in practice, which preserves strict ordering semantics.
type TraceRequest struct {
	Seq     int // 1-based position in append order, stable once assigned
	Matcher *Matcher
	Config  Config
	Added   time.Time
}

// TraceConfig is the registry of trace requests: it answers whether a class
// needs instrumenting, and what configuration applies to a specific method,
// allocating and memoizing stable method IDs as methods are first matched.
type TraceConfig struct {
	mu sync.Mutex // guards requests and tracepointsByFQ

	requests []TraceRequest
	nextSeq  int

	tracepoints     *mtrace.IDList[*mtrace.MethodTracepoint]
	tracepointsByFQ map[mtrace.MethodFQName]int // fqName -> method ID, guarded by mu
}

// New returns an empty trace config.
func New() *TraceConfig {
	return &TraceConfig{
		tracepoints:     mtrace.NewIDList[*mtrace.MethodTracepoint](),
		tracepointsByFQ: map[mtrace.MethodFQName]int{},
	}
}

// AppendTraceRequest adds a new request to the end of the list, stamping it
// with the next sequence number and the current time if Added is zero.
func (tc *TraceConfig) AppendTraceRequest(req TraceRequest) TraceRequest {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.nextSeq++
	req.Seq = tc.nextSeq
	if req.Added.IsZero() {
		req.Added = time.Now().UTC()
	}
	tc.requests = append(tc.requests, req)
	return req
}

// GetAllRequests returns a snapshot of the current request list.
func (tc *TraceConfig) GetAllRequests() []TraceRequest {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	out := make([]TraceRequest, len(tc.requests))
	copy(out, tc.requests)
	return out
}

// ClearAllRequests removes every trace request and returns the list as it
// was just before clearing, so callers (the controller's "reset" command)
// can compute which classes were affected.
func (tc *TraceConfig) ClearAllRequests() []TraceRequest {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	prior := tc.requests
	tc.requests = nil
	return prior
}

// ShouldInstrumentClass reports whether some currently-enabled request might
// match some method of the named class. Takes the registry lock.
func (tc *TraceConfig) ShouldInstrumentClass(className string) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	for _, req := range tc.requests {
		if req.Config.Enabled && req.Matcher.MightMatchMethodInClass(className) {
			return true
		}
	}
	return false
}

// GetMethodTraceData returns the method ID and config derived from the most
// recently appended request that matches fq, allocating a new canonical
// tracepoint (and method ID) on first encounter and reusing it thereafter.
// It also updates the canonical tracepoint's measureWallTime flag to
// !config.CountOnly, so the next retransform picks up the latest config. If
// no request matches, ok is false and no tracepoint is allocated.
func (tc *TraceConfig) GetMethodTraceData(fq mtrace.MethodFQName) (methodID int, cfg Config, ok bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	req, found := tc.mostRecentMatchLocked(fq)
	if !found {
		return 0, Config{}, false
	}

	id, exists := tc.tracepointsByFQ[fq]
	if !exists {
		mt := mtrace.NewMethodTracepoint(fq)
		id = tc.tracepoints.Append(mt)
		tc.tracepointsByFQ[fq] = id
	}

	tc.tracepoints.Get(id).SetMeasureWallTime(!req.Config.CountOnly)

	return id, req.Config, true
}

// GetMethodTracepoint returns the canonical tracepoint for a method ID
// previously returned by GetMethodTraceData, or nil if methodID is out of
// range. Lock-free in the common (in-range) case.
//
// A method ID read by the hook is guaranteed in range in practice, because
// the method-ID table publishes an entry before any bytecode referencing it
// can run; the bounds check exists only so the hook path can stay a no-op
// rather than crash the traced program if that guarantee is ever violated.
func (tc *TraceConfig) GetMethodTracepoint(methodID int) *mtrace.MethodTracepoint {
	if methodID < 0 || methodID >= tc.tracepoints.Len() {
		return nil
	}
	return tc.tracepoints.Get(methodID)
}

// Explain returns the trace request currently governing fq, if any, without
// allocating a tracepoint or method ID. It's a read-only convenience for
// callers (e.g. the CLI) that want to report what a command actually did.
func (tc *TraceConfig) Explain(fq mtrace.MethodFQName) (TraceRequest, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	return tc.mostRecentMatchLocked(fq)
}

func (tc *TraceConfig) mostRecentMatchLocked(fq mtrace.MethodFQName) (TraceRequest, bool) {
	for i := len(tc.requests) - 1; i >= 0; i-- {
		if tc.requests[i].Matcher.Matches(fq) {
			return tc.requests[i], true
		}
	}
	return TraceRequest{}, false
}
