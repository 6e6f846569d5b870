// Package mtctl parses controller commands and serializes every
// configuration change and retransformation against a trace config onto a
// single background worker, per spec's "single worker, periodic refresh,
// invoke-on-UI-and-wait" model.
package mtctl

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mtrace-dev/mtrace/internal/mtringbuf"
	"github.com/mtrace-dev/mtrace/mtagg"
	"github.com/mtrace-dev/mtrace/mtconfig"
	"github.com/mtrace-dev/mtrace/mttree"
	"github.com/mtrace-dev/mtrace/mtxform"
)

// diagnosticsCapacity bounds how many recent transform/skip notes the
// controller retains for RecentDiagnostics, independent of log output.
const diagnosticsCapacity = 256

// Diagnostic is one retained transform-time or runtime note, the kind a
// host UI's diagnostics panel would list alongside the call tree.
type Diagnostic struct {
	Severity Severity
	Message  string
}

var commandEntropy = ulid.DefaultEntropy()

// Severity classifies a message routed back to the view.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// ProgressHandle lets a long-running retransform pass cooperate with
// cancellation and report incremental progress, standing in for the host
// application's cancelable progress indicator.
type ProgressHandle interface {
	Cancelled() bool
	Advance(fraction float64)
	Done()
}

// View is the presentation layer the controller drives. All three core
// methods are invoked from the controller's worker, synchronously, so a real
// implementation marshaling onto a UI thread and waiting for completion
// throttles the refresh loop naturally to paint speed.
type View interface {
	// RefreshCallTreeData hands the view a fresh merged snapshot: the tree
	// itself, flattened per-tracepoint stats, and an estimate of how much of
	// the measured wall time is tracer overhead rather than traced work.
	RefreshCallTreeData(tree *mttree.Node, flatStats []mtagg.TracepointStats, overheadEstimate time.Duration)
	ShowCommandLinePopup(message string, severity Severity)
	CreateProgressIndicator() ProgressHandle

	// SaveSnapshot persists a raster snapshot of the current view to path.
	// The concrete rendering is entirely the view's concern; the controller
	// only validates that path is absolute before delegating.
	SaveSnapshot(path string) error
}

// HostRuntime is the instrumentation facility the controller drives to
// retransform classes after a configuration change.
type HostRuntime interface {
	// InstallClassFileTransformer registers the function the host invokes,
	// on its own terms, whenever a class needs (re)weaving. raw is always
	// the class's original, unmodified bytes; the host is responsible for
	// retaining those across retransforms.
	InstallClassFileTransformer(func(cr mtxform.ClassRef, raw []byte) ([]byte, error))

	// RetransformClasses asks the host to reinvoke the installed
	// transformer for each of classes. Must be safe to call from the
	// controller's worker and must not assume it's the only caller.
	RetransformClasses(ctx context.Context, classes []mtxform.ClassRef) error

	// AllLoadedClasses enumerates currently loaded classes.
	AllLoadedClasses() []mtxform.ClassRef
}

// Controller owns the single background worker that serializes command
// processing and periodic snapshot aggregation.
type Controller struct {
	config  *mtconfig.TraceConfig
	manager *mttree.Manager
	host    HostRuntime
	view    View
	weaver  mtxform.BytecodeWeaver
	logger  *log.Logger

	refreshInterval time.Duration
	commands        chan commandRequest
	diagnostics     *mtringbuf.RingBuffer[Diagnostic]

	// hostAvailable latches false the first time RetransformClasses returns
	// a *HostUnavailableError (other retransform errors are logged and the
	// class is skipped); once false, every command that requires transformation becomes a
	// single-warning no-op for the rest of the process, per spec's
	// host-runtime-unavailable error kind.
	hostAvailable bool
}

type commandRequest struct {
	id     ulid.ULID
	line   string
	result chan error
}

// NewController wires a controller to its registry, call-tree manager, host
// runtime, view, and bytecode weaver, and installs the class file
// transformer with the host immediately.
func NewController(config *mtconfig.TraceConfig, manager *mttree.Manager, host HostRuntime, view View, weaver mtxform.BytecodeWeaver, logger *log.Logger, refreshInterval time.Duration) *Controller {
	c := &Controller{
		config:          config,
		manager:         manager,
		host:            host,
		view:            view,
		weaver:          weaver,
		logger:          logger,
		refreshInterval: refreshInterval,
		commands:        make(chan commandRequest),
		diagnostics:     mtringbuf.New[Diagnostic](diagnosticsCapacity),
		hostAvailable:   true,
	}
	host.InstallClassFileTransformer(c.transform)
	manager.SetInvariantViolationHandler(func(err error) {
		c.logger.Printf("[ERROR] %v", err)
		c.recordDiagnostic(SeverityError, "%v", err)
	})
	return c
}

// RecentDiagnostics returns up to n of the controller's most recently
// recorded diagnostics, most recent first. n <= 0 means "all retained".
func (c *Controller) RecentDiagnostics(n int) []Diagnostic {
	return c.diagnostics.Recent(n)
}

func (c *Controller) recordDiagnostic(severity Severity, format string, args ...any) {
	c.diagnostics.Add(Diagnostic{Severity: severity, Message: fmt.Sprintf(format, args...)})
}

func (c *Controller) transform(cr mtxform.ClassRef, raw []byte) ([]byte, error) {
	out, plan, err := mtxform.Transform(cr, raw, c.config, c.weaver)
	for _, skipped := range plan.Skipped {
		msg := fmt.Sprintf("skip %s#%s: %s", cr.ClassName(), skipped.Method.FQName().Method, skipped.Reason)
		c.logger.Print(msg)
		c.recordDiagnostic(SeverityWarning, "%s", msg)
	}
	if err != nil {
		level := "ERROR"
		severity := SeverityError
		if _, nonModifiable := err.(*mtxform.NonModifiableClassError); nonModifiable {
			level = "WARN"
			severity = SeverityWarning
		}
		msg := fmt.Sprintf("transform %s: %v", cr.ClassName(), err)
		c.logger.Printf("[%s] %s", level, msg)
		c.recordDiagnostic(severity, "%s", msg)
	}
	return out, err
}

// Submit enqueues a command line for processing on the controller's worker
// and blocks until it has been handled or ctx is done. It's the only
// thread-safe way into the controller from outside its own worker.
func (c *Controller) Submit(ctx context.Context, line string) error {
	req := commandRequest{
		id:     ulid.MustNew(ulid.Timestamp(time.Now()), commandEntropy),
		line:   line,
		result: make(chan error, 1),
	}

	select {
	case c.commands <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the controller's single background worker: it serializes incoming
// commands against a periodic snapshot refresh until ctx is canceled, then
// returns ctx.Err(). A host process can wrap it in a closure as an
// oklog/run.Group actor and compose it with a signal handler, the way
// cmd/mtrace does.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			c.refresh()

		case req := <-c.commands:
			req.result <- c.handle(ctx, req)
		}
	}
}

func (c *Controller) refresh() {
	root := c.manager.GetCallTreeSnapshotAllThreadsMerged()
	flat := mtagg.ComputeFlatTracepointStats(root)
	overhead := mtagg.EstimateTracingOverhead(root)
	c.view.RefreshCallTreeData(root, flat, overhead)
}

func (c *Controller) handle(ctx context.Context, req commandRequest) error {
	cmd, err := Parse(req.line)
	if err != nil {
		c.view.ShowCommandLinePopup(err.Error(), SeverityWarning)
		return err
	}

	c.logger.Printf("[%s] %s: %s", req.id, cmd.Kind, req.line)

	switch cmd.Kind {
	case KindClear:
		c.manager.ClearCallTrees()
		c.refresh()
		return nil

	case KindReset:
		return c.doReset(ctx)

	case KindTrace, KindUntrace:
		return c.doTraceOrUntrace(ctx, cmd)

	case KindSave:
		if err := c.view.SaveSnapshot(cmd.SavePath); err != nil {
			c.view.ShowCommandLinePopup(fmt.Sprintf("save failed: %v", err), SeverityError)
			return err
		}
		return nil

	default:
		return &ConfigError{Reason: fmt.Sprintf("unhandled command kind %v", cmd.Kind)}
	}
}

func (c *Controller) doReset(ctx context.Context) error {
	prior := c.config.ClearAllRequests()

	affected := c.classesMatchingAnyRequest(prior)
	if err := c.retransform(ctx, affected); err != nil {
		return err
	}

	c.manager.ClearCallTrees()
	c.refresh()
	return nil
}

func (c *Controller) doTraceOrUntrace(ctx context.Context, cmd Command) error {
	matcher := mtconfig.NewMatcher(cmd.ClassPattern, cmd.MethodPattern)
	req := c.config.AppendTraceRequest(mtconfig.TraceRequest{
		Matcher: matcher,
		Config: mtconfig.Config{
			Enabled:      cmd.Kind == KindTrace,
			CountOnly:    cmd.CountOnly,
			TracedParams: cmd.TracedParams,
		},
	})

	affected := c.classesMatchingAnyRequest([]mtconfig.TraceRequest{req})
	return c.retransform(ctx, affected)
}

func (c *Controller) classesMatchingAnyRequest(reqs []mtconfig.TraceRequest) []mtxform.ClassRef {
	var affected []mtxform.ClassRef
	for _, cr := range c.host.AllLoadedClasses() {
		for _, req := range reqs {
			if req.Matcher.MightMatchMethodInClass(cr.ClassName()) {
				affected = append(affected, cr)
				break
			}
		}
	}
	return affected
}

// retransform asks the host to reweave each of classes, yielding to the view
// after every class via the progress handle so a real UI stays responsive,
// and stopping at the next class boundary if the handle is canceled.
func (c *Controller) retransform(ctx context.Context, classes []mtxform.ClassRef) error {
	if !c.hostAvailable {
		c.view.ShowCommandLinePopup("tracing is disabled: host runtime instrumentation is unavailable", SeverityWarning)
		return nil
	}
	if len(classes) == 0 {
		return nil
	}

	progress := c.view.CreateProgressIndicator()
	defer progress.Done()

	for i, cr := range classes {
		if progress.Cancelled() {
			break
		}
		if err := c.host.RetransformClasses(ctx, []mtxform.ClassRef{cr}); err != nil {
			c.logger.Printf("[ERROR] retransform %s: %v", cr.ClassName(), err)
			if _, fatal := err.(*HostUnavailableError); fatal {
				c.hostAvailable = false
				c.view.ShowCommandLinePopup("tracing is disabled: host runtime instrumentation is unavailable", SeverityWarning)
				return err
			}
			continue
		}
		progress.Advance(float64(i+1) / float64(len(classes)))
	}
	return nil
}

// HostUnavailableError marks a host-runtime failure as permanent for the
// process lifetime, per spec's host-runtime-unavailable error kind.
type HostUnavailableError struct {
	Reason string
}

func (e *HostUnavailableError) Error() string { return e.Reason }
