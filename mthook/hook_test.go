package mthook_test

import (
	"testing"

	"github.com/mtrace-dev/mtrace"
	"github.com/mtrace-dev/mtrace/mtconfig"
	"github.com/mtrace-dev/mtrace/mthook"
	"github.com/mtrace-dev/mtrace/mttree"
)

var fooBar = mtrace.MethodFQName{Class: "com.example.Foo", Method: "bar", Descriptor: "(I)V"}

func newHook(t *testing.T) (*mthook.Hook, *mtconfig.TraceConfig, *mttree.Manager) {
	t.Helper()
	cfg := mtconfig.New()
	cfg.AppendTraceRequest(mtconfig.TraceRequest{
		Matcher: mtconfig.NewMatcher("com.example.Foo", "bar"),
		Config:  mtconfig.Config{Enabled: true},
	})
	mgr := mttree.NewManager(mttree.NewFakeClock())
	return mthook.NewHook(cfg, mgr), cfg, mgr
}

func TestHookEnterLeaveNoArgs(t *testing.T) {
	h, cfg, mgr := newHook(t)
	id, _, ok := cfg.GetMethodTraceData(fooBar)
	if !ok {
		t.Fatal("expected a match")
	}

	h.Enter(int32(id), nil)
	h.Leave()

	root := mgr.GetCallTreeSnapshotAllThreadsMerged()
	found := false
	for _, c := range root.Children() {
		if c.Tracepoint() == cfg.GetMethodTracepoint(id) {
			found = true
			if c.CallCount() != 1 {
				t.Fatalf("callCount = %d, want 1", c.CallCount())
			}
		}
	}
	if !found {
		t.Fatal("expected the canonical method tracepoint to appear as a root child")
	}
}

func TestHookEnterWithArgsInternsTracepoint(t *testing.T) {
	h, cfg, mgr := newHook(t)
	id, _, _ := cfg.GetMethodTraceData(fooBar)

	h.Enter(int32(id), []any{1})
	h.Leave()
	h.Enter(int32(id), []any{1})
	h.Leave()
	h.Enter(int32(id), []any{2})
	h.Leave()

	root := mgr.GetCallTreeSnapshotAllThreadsMerged()
	if got := len(root.Children()); got != 2 {
		t.Fatalf("expected two distinct arg-stamped tracepoints, got %d children", got)
	}
	for _, c := range root.Children() {
		if c.Tracepoint().DetailedName() == "com.example.Foo#bar(I)V(1)" && c.CallCount() != 2 {
			t.Fatalf("expected the (1) call site to be interned and counted twice, got %d", c.CallCount())
		}
	}
}

func TestHookEnterUnresolvableMethodIDIsANoOp(t *testing.T) {
	cfg := mtconfig.New()
	mgr := mttree.NewManager(mttree.NewFakeClock())
	h := mthook.NewHook(cfg, mgr)

	h.Enter(999, nil)
	h.Leave()
}
