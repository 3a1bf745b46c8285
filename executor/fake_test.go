package executor_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/caffeineduck/codearena/executor"
	"github.com/caffeineduck/codearena/preprocess"
)

// fakeLanguage injects a one-line prelude and passes code as argv[1].
type fakeLanguage struct{}

func (fakeLanguage) Name() string { return "fake" }

func (fakeLanguage) Pass() preprocess.Pass {
	return preprocess.Pass{Prelude: "# prelude", EvalShim: "# eval shim"}
}

func (fakeLanguage) Args(code string) []string { return []string{"fake", code} }

func (fakeLanguage) Env() map[string]string { return nil }

func (fakeLanguage) StdlibDir() string { return "/lib" }

func (fakeLanguage) IsStdlibModule(name string) bool { return name == "json" }

func (fakeLanguage) StdlibFiles(name string) []string { return []string{name + ".py"} }

var errExit = errors.New("exit status 1")

// guest is the scripted side of one invocation. It talks to the executor
// over the same stderr/stdin protocol the real prelude uses.
type guest struct {
	ctx context.Context
	inv executor.Invocation
	in  *bufio.Reader
}

func (g *guest) code() string { return g.inv.Args[1] }

func (g *guest) call(fn string, args map[string]any) (map[string]any, error) {
	req, err := json.Marshal(map[string]any{"fn": fn, "args": args})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(g.inv.Stderr, "\x00ARENA:%s\x00", req)
	line, err := g.in.ReadString('\n')
	if err != nil {
		return nil, err
	}
	var resp map[string]any
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *guest) input() string {
	resp, err := g.call("input", nil)
	if err != nil {
		return ""
	}
	s, _ := resp["data"].(string)
	return s
}

func (g *guest) print(a ...any) {
	fmt.Fprintln(g.inv.Stdout, a...)
}

func (g *guest) raise(typ string, line int, msg string) error {
	fmt.Fprintf(g.inv.Stderr, "\x00ARENA_ERROR:%s\x1f%d\x1f%s\x00", typ, line, msg)
	return errExit
}

type script func(g *guest) error

// fakeBackend runs scripts in order; the last one repeats. Load and Reload
// consume loadErrs in order.
type fakeBackend struct {
	mu       sync.Mutex
	loadErrs []error
	scripts  []script
	loads    int
	reloads  int
	execs    int
	closed   bool

	// stdlib lists the files present in the archive.
	stdlib map[string]bool
	// onReload runs at the start of every Reload.
	onReload func()
}

func (b *fakeBackend) nextLoadErr() error {
	if len(b.loadErrs) == 0 {
		return nil
	}
	err := b.loadErrs[0]
	b.loadErrs = b.loadErrs[1:]
	return err
}

func (b *fakeBackend) Load(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	return b.nextLoadErr()
}

func (b *fakeBackend) Exec(ctx context.Context, inv executor.Invocation) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return executor.ErrClosed
	}
	s := b.scripts[min(b.execs, len(b.scripts)-1)]
	b.execs++
	b.mu.Unlock()

	return s(&guest{ctx: ctx, inv: inv, in: bufio.NewReader(inv.Stdin)})
}

func (b *fakeBackend) Reload(ctx context.Context) error {
	if b.onReload != nil {
		b.onReload()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloads++
	return b.nextLoadErr()
}

func (b *fakeBackend) HasStdlibFile(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stdlib[name]
}

func (b *fakeBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBackend) counts() (loads, reloads, execs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads, b.reloads, b.execs
}
