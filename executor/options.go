package executor

import (
	"log/slog"
	"time"

	"github.com/caffeineduck/codearena/hostfunc"
	"github.com/caffeineduck/codearena/loader"
)

// DefaultTimeout bounds a single run.
const DefaultTimeout = 5 * time.Second

// DefaultMaxOutput caps captured stdout per run.
const DefaultMaxOutput = 1 << 20

// DefaultRecheckDelay is how long Warm waits before its one re-attempt.
const DefaultRecheckDelay = 2 * time.Second

// Option configures an Executor.
type Option func(*config)

type config struct {
	timeout   time.Duration
	recheck   time.Duration
	maxOutput int
	registry  *hostfunc.Registry
	logger    *slog.Logger
}

func defaultConfig() config {
	return config{
		timeout:   DefaultTimeout,
		recheck:   DefaultRecheckDelay,
		maxOutput: DefaultMaxOutput,
	}
}

// WithTimeout sets the maximum execution time of one run.
// Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRecheckDelay sets the delay before Warm retries a failed load.
func WithRecheckDelay(d time.Duration) Option {
	return func(c *config) {
		c.recheck = d
	}
}

// WithMaxOutput caps how many bytes of stdout a run may produce.
// Output beyond the cap is discarded.
func WithMaxOutput(n int) Option {
	return func(c *config) {
		c.maxOutput = n
	}
}

// WithRegistry supplies extra host functions. The registry is cloned for
// every run, so per-run functions never leak into it.
func WithRegistry(r *hostfunc.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

// WithLogger sets the logger for state transitions and self-healing.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WASMOption configures the WASM backend at creation time.
type WASMOption func(*wasmConfig)

type wasmConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = wazero default (4GB)
	loaderOpts       []loader.Option
}

func defaultWASMConfig() wasmConfig {
	return wasmConfig{
		memoryLimitPages: MemoryLimit256MB,
	}
}

// WithDiskCache enables persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/codearena or
// XDG_CACHE_HOME/codearena.
//
// Examples:
//
//	executor.NewWASM(core, stdlib, executor.WithDiskCache())            // default dir
//	executor.NewWASM(core, stdlib, executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) WASMOption {
	return func(c *wasmConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum memory available to the interpreter.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(1024) = 64MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 256MB. Zero removes the limit (up to 4GB).
func WithMemoryLimit(pages uint32) WASMOption {
	return func(c *wasmConfig) {
		c.memoryLimitPages = pages
	}
}

// WithLoaderOptions passes options through to the resource loader.
func WithLoaderOptions(opts ...loader.Option) WASMOption {
	return func(c *wasmConfig) {
		c.loaderOpts = append(c.loaderOpts, opts...)
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)
