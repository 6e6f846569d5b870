// Package mtrace provides the core identity model for an in-process method
// tracer: tracepoints (the things that get measured) and an append-only table
// that assigns them small, stable integer IDs for embedding in instrumented
// bytecode.
//
// The tracing runtime proper is split across sibling packages: mtconfig holds
// the trace-request registry, mttree builds and merges per-goroutine call
// trees, mthook is the two-function entry point called from instrumented
// code, mtxform computes bytecode weave plans, mtagg derives flat statistics
// from a call tree, and mtctl parses commands and drives retransformation.
//
// Most callers won't use this package directly; see mtctl.Controller and
// cmd/mtrace for a complete, wired-together tracer.
package mtrace
