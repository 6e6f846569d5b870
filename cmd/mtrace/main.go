// mtrace-console is a standalone driver for the tracer's controller: it
// reads commands from stdin, one per line, and submits each to a
// Controller wired against a demo in-process HostRuntime and a
// stdout-printing View. It exists to exercise the wiring end to end; a
// real deployment embeds mtctl.Controller against its own host runtime
// and UI rather than these demo implementations.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/mtrace-dev/mtrace/mtagg"
	"github.com/mtrace-dev/mtrace/mtconfig"
	"github.com/mtrace-dev/mtrace/mtctl"
	"github.com/mtrace-dev/mtrace/mttree"
	"github.com/mtrace-dev/mtrace/mtxform"
)

func main() {
	ctx := context.Background()
	err := exec(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:])
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootConfig struct {
	LogLevel        string        `ff:"long: log-level | default: info | placeholder: LEVEL | usage: log level (none, info, debug)"`
	RefreshInterval time.Duration `ff:"long: refresh-interval | default: 1s | placeholder: DURATION | usage: periodic call-tree snapshot interval"`

	info  *log.Logger
	debug *log.Logger
}

func exec(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (err error) {
	cfg := &rootConfig{}
	flags := ff.NewFlagSet("mtrace-console")
	if ferr := flags.AddStruct(cfg); ferr != nil {
		panic(fmt.Errorf("invalid struct config: %w", ferr))
	}
	rootCommand := &ff.Command{
		Name:      "mtrace-console",
		ShortHelp: "drive the method tracer controller from stdin commands",
		Flags:     flags,
	}

	showHelp := true
	defer func() {
		errHelp := errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec)
		if showHelp || errHelp {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
		}
		if errHelp {
			err = nil
		}
	}()

	if perr := rootCommand.Parse(args, ff.WithEnvVarPrefix("MTRACE")); perr != nil {
		return perr
	}

	var infodst, debugdst io.Writer
	switch cfg.LogLevel {
	case "n", "none":
		infodst, debugdst = io.Discard, io.Discard
	case "i", "info":
		infodst, debugdst = stderr, io.Discard
	case "d", "debug":
		infodst, debugdst = stderr, stderr
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	cfg.info = log.New(infodst, "", 0)
	cfg.debug = log.New(debugdst, "[DEBUG] ", log.Lmsgprefix)

	showHelp = false
	return runConsole(ctx, cfg, stdin, stdout)
}

func runConsole(ctx context.Context, cfg *rootConfig, stdin io.Reader, stdout io.Writer) error {
	config := mtconfig.New()
	manager := mttree.NewManager(mttree.SystemClock)
	host := newDemoHostRuntime()
	view := newStdoutView(stdout)

	controller := mtctl.NewController(config, manager, host, view, noopWeaver{}, cfg.info, cfg.RefreshInterval)

	var g run.Group
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return controller.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return readCommands(ctx, stdin, controller, cfg.debug)
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(run.SignalHandler(ctx, os.Interrupt, os.Kill))
	}
	return g.Run()
}

func readCommands(ctx context.Context, stdin io.Reader, controller *mtctl.Controller, debug *log.Logger) error {
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		debug.Printf("submit: %s", line)
		if err := controller.Submit(ctx, line); err != nil {
			debug.Printf("submit failed: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// noopWeaver never modifies bytes; it stands in for the concrete bytecode
// library a real deployment supplies.
type noopWeaver struct{}

func (noopWeaver) Weave(raw []byte, plan []mtxform.WeaveInstruction) ([]byte, error) {
	return raw, nil
}

// demoHostRuntime is an in-memory stand-in for a host's instrumentation
// facility: it has no loaded classes and its retransform call always
// succeeds, so the demo console can exercise the controller's command
// handling without a real bytecode engine attached.
type demoHostRuntime struct {
	mu          sync.Mutex
	transformer func(cr mtxform.ClassRef, raw []byte) ([]byte, error)
}

func newDemoHostRuntime() *demoHostRuntime { return &demoHostRuntime{} }

func (h *demoHostRuntime) InstallClassFileTransformer(fn func(cr mtxform.ClassRef, raw []byte) ([]byte, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transformer = fn
}

func (h *demoHostRuntime) RetransformClasses(ctx context.Context, classes []mtxform.ClassRef) error {
	return nil
}

func (h *demoHostRuntime) AllLoadedClasses() []mtxform.ClassRef { return nil }

// stdoutView prints every controller event to stdout rather than rendering
// a real UI, which is out of scope for the core.
type stdoutView struct {
	mu sync.Mutex
	w  io.Writer
}

func newStdoutView(w io.Writer) *stdoutView { return &stdoutView{w: w} }

func (v *stdoutView) RefreshCallTreeData(tree *mttree.Node, flat []mtagg.TracepointStats, overheadEstimate time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.w, "refresh: %d distinct tracepoints, estimated overhead %s\n", len(flat), overheadEstimate)
}

func (v *stdoutView) ShowCommandLinePopup(message string, severity mtctl.Severity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.w, "[%s] %s\n", severity, message)
}

func (v *stdoutView) CreateProgressIndicator() mtctl.ProgressHandle { return stdoutProgress{} }

func (v *stdoutView) SaveSnapshot(path string) error {
	return fmt.Errorf("save is not supported by the demo console")
}

type stdoutProgress struct{}

func (stdoutProgress) Cancelled() bool          { return false }
func (stdoutProgress) Advance(fraction float64) {}
func (stdoutProgress) Done()                    {}
