package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/caffeineduck/codearena/hostfunc"
	"github.com/caffeineduck/codearena/preprocess"
)

var (
	// ErrUnavailable is returned when the interpreter is not loaded.
	// It wraps the last load error when there is one.
	ErrUnavailable = errors.New("interpreter unavailable")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("executor closed")
)

// LineOffsetEnv is the guest environment variable holding the number of
// injected lines ahead of the contestant's source.
const LineOffsetEnv = "ARENA_LINE_OFFSET"

// State is the interpreter lifecycle state.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status is a snapshot of the interpreter lifecycle.
type Status struct {
	State State
	// Err is the last load error, set in StateFailed.
	Err error
}

// Result holds the output and metadata from a run.
type Result struct {
	// Output is the trimmed stdout, or an "Error: ..." string.
	Output   string
	Duration time.Duration
	// Failure is set when Output is an error string.
	Failure *Failure
	// Healed reports that the interpreter was reloaded and the run retried.
	Healed bool
	// Truncated reports that stdout exceeded the output cap.
	Truncated bool
}

// Executor runs contestant programs through a Backend, one fresh
// interpreter instance per run.
type Executor struct {
	lang    Language
	backend Backend
	cfg     config
	log     *slog.Logger
	reloads singleflight.Group

	mu      sync.Mutex
	state   State
	lastErr error
	running int
	closed  bool
}

// New creates an Executor. Call Load before running programs.
func New(lang Language, backend Backend, opts ...Option) *Executor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		lang:    lang,
		backend: backend,
		cfg:     cfg,
		log:     log.With("component", "executor", "language", lang.Name()),
	}
}

// Status reports the current lifecycle state.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{State: e.state, Err: e.lastErr}
}

func (e *Executor) setState(s State, err error) {
	if e.state != s {
		e.log.Debug("state change", "from", e.state, "to", s)
	}
	e.state = s
	e.lastErr = err
}

// Load brings the interpreter to StateReady. It returns immediately when the
// interpreter is already loaded, and may be called again after a failure.
func (e *Executor) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == StateReady || e.state == StateRunning {
		e.mu.Unlock()
		return nil
	}
	e.setState(StateLoading, nil)
	e.mu.Unlock()

	err := e.backend.Load(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err != nil {
		e.setState(StateFailed, err)
		e.log.Warn("interpreter load failed", "error", err)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if e.state == StateLoading {
		e.setState(StateReady, nil)
	}
	return nil
}

// Warm loads in the background and, if the interpreter is still not ready
// after the recheck delay, tries exactly once more. The returned channel is
// closed after the re-check.
func (e *Executor) Warm(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go e.Load(ctx)
	time.AfterFunc(e.cfg.recheck, func() {
		defer close(done)
		if ctx.Err() != nil {
			return
		}
		switch e.Status().State {
		case StateReady, StateRunning:
			return
		}
		e.log.Info("interpreter still not ready, retrying")
		e.Load(ctx)
	})
	return done
}

// Run executes source with input as its standard input and returns the
// trimmed output or an "Error: ..." string. The error is non-nil only when
// the interpreter is unavailable or ctx is done.
func (e *Executor) Run(ctx context.Context, source, input string) (string, error) {
	res, err := e.Execute(ctx, source, input)
	return res.Output, err
}

// Execute is Run with run metadata.
func (e *Executor) Execute(ctx context.Context, source, input string) (Result, error) {
	start := time.Now()

	if err := e.acquire(); err != nil {
		return Result{Duration: time.Since(start)}, err
	}

	prog := e.lang.Pass().Apply(source)
	res, err := e.attempt(ctx, prog, input)
	if err == nil && res.Failure != nil {
		if name, ok := res.Failure.MissingModule(); ok && e.stdlibMissing(name) {
			e.log.Warn("stdlib module missing, reloading interpreter", "module", name)
			res, err = e.heal(ctx, prog, input)
		}
	}
	e.release()

	res.Duration = time.Since(start)
	return res, err
}

func (e *Executor) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	switch e.state {
	case StateReady, StateRunning:
	default:
		if e.lastErr != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, e.lastErr)
		}
		return ErrUnavailable
	}
	e.running++
	e.setState(StateRunning, nil)
	return nil
}

func (e *Executor) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running--
	if e.running == 0 && e.state == StateRunning {
		e.setState(StateReady, nil)
	}
}

// stdlibMissing reports whether name is a standard-library module that the
// mounted archive does not provide. A program may raise ModuleNotFoundError
// itself for a module the archive has.
func (e *Executor) stdlibMissing(name string) bool {
	if !e.lang.IsStdlibModule(name) {
		return false
	}
	for _, file := range e.lang.StdlibFiles(name) {
		if e.backend.HasStdlibFile(file) {
			return false
		}
	}
	return true
}

// heal reloads the interpreter and retries once. Concurrent heals share one
// reload, and other runs keep going on the current interpreter meanwhile.
func (e *Executor) heal(ctx context.Context, prog preprocess.Program, input string) (Result, error) {
	_, err, _ := e.reloads.Do("reload", func() (any, error) {
		return nil, e.backend.Reload(ctx)
	})
	if err != nil {
		e.mu.Lock()
		e.setState(StateFailed, err)
		e.mu.Unlock()
		e.log.Warn("interpreter reload failed", "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	res, err := e.attempt(ctx, prog, input)
	res.Healed = true
	return res, err
}

// attempt performs one run in a private execution context.
func (e *Executor) attempt(ctx context.Context, prog preprocess.Program, input string) (Result, error) {
	runCtx := ctx
	if e.cfg.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.timeout)
		defer cancel()
	}

	registry := hostfunc.NewRegistry()
	if e.cfg.registry != nil {
		registry = e.cfg.registry.Clone()
	}
	queue := hostfunc.NewInputQueue(input)
	registry.Register("input", queue.Input)
	registry.Register("stdin_read", queue.StdinRead)
	registry.Register("stdin_readline", queue.StdinReadline)
	if prog.UsesEval {
		registry.Register("eval", hostfunc.Eval)
	}

	env := make(map[string]string)
	maps.Copy(env, e.lang.Env())
	env[LineOffsetEnv] = strconv.Itoa(prog.Offset)

	stdout := &cappedBuffer{limit: e.cfg.maxOutput}
	stdinReader, stdinWriter := io.Pipe()
	protocol := newProtocolHandler(runCtx, registry, stdinWriter)

	// A guest blocked reading stdin sits in a host call the context cannot
	// interrupt; closing the pipe releases it.
	stop := context.AfterFunc(runCtx, func() { stdinReader.Close() })
	defer stop()

	execErr := e.backend.Exec(runCtx, Invocation{
		Args:      e.lang.Args(prog.Code),
		Env:       env,
		StdlibDir: e.lang.StdlibDir(),
		Stdin:     stdinReader,
		Stdout:    stdout,
		Stderr:    protocol,
	})
	stdinWriter.Close()
	stdinReader.Close()
	protocol.Close()

	res := Result{Truncated: stdout.truncated}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if errors.Is(execErr, ErrClosed) {
		return res, ErrClosed
	}
	if errors.Is(execErr, ErrUnavailable) {
		return res, execErr
	}

	var failure *Failure
	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		f := timeLimit(e.cfg.timeout)
		failure = &f
	case protocol.Report() != nil:
		f := fromReport(prog, protocol.Report())
		failure = &f
	case execErr != nil:
		f, ok := fromTraceback(prog, protocol.Stderr())
		if !ok {
			f = Failure{Type: "RuntimeError", Message: execMessage(execErr, protocol.Stderr())}
		}
		failure = &f
	}

	if failure != nil {
		res.Failure = failure
		res.Output = failure.String()
		return res, nil
	}
	res.Output = strings.TrimSpace(stdout.String())
	return res, nil
}

// execMessage picks the most useful description of an unclassified failure.
func execMessage(err error, stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return last
	}
	return err.Error()
}

// Close releases the backend. Runs after Close return ErrClosed.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.setState(StateUnloaded, nil)
	e.mu.Unlock()

	return e.backend.Close(ctx)
}
