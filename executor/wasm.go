package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/caffeineduck/codearena/loader"
)

// entryPoint must be exported by the interpreter module.
const entryPoint = "_start"

var errNotCompiled = fmt.Errorf("%w: interpreter module not compiled", ErrUnavailable)

// WASM runs a WASI interpreter build under wazero.
type WASM struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	loader  *loader.Loader

	mu       sync.RWMutex
	compiled wazero.CompiledModule
	stdlib   fs.FS
	closed   bool
}

// NewWASM creates the WASM backend. The loader is built from the two
// resources and validates each bundle by compiling it.
func NewWASM(core, stdlib loader.Resource, opts ...WASMOption) (*WASM, error) {
	cfg := defaultWASMConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	w := &WASM{runtime: rt, cache: cache}
	loaderOpts := append([]loader.Option{loader.WithValidator(w.validate)}, cfg.loaderOpts...)
	w.loader = loader.New(core, stdlib, loaderOpts...)
	return w, nil
}

// Loader exposes the resource loader for status reporting and warm-up.
func (w *WASM) Loader() *loader.Loader {
	return w.loader
}

// validate compiles the core module, checks its entry point and opens the
// stdlib archive. On success both replace the current ones.
func (w *WASM) validate(ctx context.Context, b *loader.Bundle) error {
	compiled, err := w.runtime.CompileModule(ctx, b.Core)
	if err != nil {
		return fmt.Errorf("compile interpreter: %w", err)
	}
	if _, ok := compiled.ExportedFunctions()[entryPoint]; !ok {
		compiled.Close(ctx)
		return fmt.Errorf("entry point %s not exported", entryPoint)
	}

	archive, err := openStdlib(b.Stdlib)
	if err != nil {
		compiled.Close(ctx)
		return fmt.Errorf("open stdlib archive: %w", err)
	}

	w.mu.Lock()
	old := w.compiled
	w.compiled, w.stdlib = compiled, archive
	w.mu.Unlock()

	if old != nil {
		old.Close(ctx)
	}
	return nil
}

func (w *WASM) Load(ctx context.Context) error {
	if _, err := w.loader.Load(ctx); err != nil {
		return err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.compiled == nil {
		return errNotCompiled
	}
	return nil
}

func (w *WASM) Exec(ctx context.Context, inv Invocation) error {
	w.mu.RLock()
	compiled, stdlib, closed := w.compiled, w.stdlib, w.closed
	w.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if compiled == nil {
		return errNotCompiled
	}

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(inv.Stdout).
		WithStderr(inv.Stderr).
		WithStdin(inv.Stdin).
		WithArgs(inv.Args...).
		WithFSConfig(wazero.NewFSConfig().WithFSMount(stdlib, inv.StdlibDir)).
		WithName("")

	for k, v := range inv.Env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	mod, err := w.runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if mod != nil {
		mod.Close(ctx)
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
		return nil
	}
	return err
}

// Reload drops the cached bundle and loads it again. validate swaps the new
// module in, so the old one serves runs until then and stays in place when
// the reload fails.
func (w *WASM) Reload(ctx context.Context) error {
	w.loader.Invalidate()
	return w.Load(ctx)
}

func (w *WASM) HasStdlibFile(name string) bool {
	w.mu.RLock()
	archive := w.stdlib
	w.mu.RUnlock()
	if archive == nil {
		return false
	}
	_, err := fs.Stat(archive, name)
	return err == nil
}

// Close releases all resources held by the backend.
func (w *WASM) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if w.cache != nil {
		if err := w.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "codearena")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "codearena")
	}
	return filepath.Join(os.TempDir(), "codearena-cache")
}
