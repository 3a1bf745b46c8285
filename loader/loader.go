// Package loader fetches the two resources the sandboxed interpreter needs:
// the interpreter WASM binary and its standard-library archive.
//
// Each resource is read from a local path first and falls back to a pinned
// CDN URL on its own, independently of the other. A bundle is ready only when
// both resources loaded within the timeout and the validator accepted them.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultRecheckDelay = 2 * time.Second
)

// ErrNotReady is returned by Bundle before a load has succeeded.
var ErrNotReady = errors.New("interpreter not loaded")

// Resource names one required file.
type Resource struct {
	Name        string
	LocalPath   string
	FallbackURL string
}

// Bundle holds the loaded resource bytes.
type Bundle struct {
	Core   []byte
	Stdlib []byte
	// Origins records where each resource came from: "local" or the URL.
	Origins map[string]string
}

// Validator inspects a freshly loaded bundle, e.g. compiles the module and
// checks for its entry point. A non-nil error fails the load.
type Validator func(ctx context.Context, b *Bundle) error

type Loader struct {
	core   Resource
	stdlib Resource
	cfg    config

	group singleflight.Group

	mu      sync.RWMutex
	bundle  *Bundle
	err     error
	refresh bool
}

type config struct {
	timeout   time.Duration
	recheck   time.Duration
	validate  Validator
	client    *http.Client
	logger    *slog.Logger
	writeBack bool
}

// Option configures a Loader.
type Option func(*config)

// WithTimeout bounds one load attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithRecheckDelay sets how long Warm waits before its single re-attempt.
func WithRecheckDelay(d time.Duration) Option {
	return func(c *config) { c.recheck = d }
}

// WithValidator sets the bundle validator.
func WithValidator(v Validator) Option {
	return func(c *config) { c.validate = v }
}

// WithHTTPClient sets the client used for CDN downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.client = client }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithWriteBack controls whether CDN downloads are saved to the local path.
func WithWriteBack(enabled bool) Option {
	return func(c *config) { c.writeBack = enabled }
}

// New creates a Loader for the given core and stdlib resources.
func New(core, stdlib Resource, opts ...Option) *Loader {
	cfg := config{
		timeout:   DefaultTimeout,
		recheck:   DefaultRecheckDelay,
		client:    http.DefaultClient,
		logger:    slog.Default(),
		writeBack: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if core.Name == "" {
		core.Name = "core"
	}
	if stdlib.Name == "" {
		stdlib.Name = "stdlib"
	}
	return &Loader{core: core, stdlib: stdlib, cfg: cfg}
}

// Load returns the loaded bundle, loading it first if needed. Concurrent
// callers share one attempt.
func (l *Loader) Load(ctx context.Context) (*Bundle, error) {
	l.mu.RLock()
	if b := l.bundle; b != nil {
		l.mu.RUnlock()
		return b, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do("load", func() (any, error) {
		b, err := l.load(ctx)
		l.mu.Lock()
		l.bundle, l.err = b, err
		if err == nil {
			l.refresh = false
		}
		l.mu.Unlock()
		return b, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bundle), nil
}

func (l *Loader) load(ctx context.Context) (*Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()

	l.mu.RLock()
	remoteFirst := l.refresh
	l.mu.RUnlock()

	start := time.Now()
	b := &Bundle{Origins: make(map[string]string, 2)}
	var originsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, item := range []struct {
		res Resource
		dst *[]byte
	}{
		{l.core, &b.Core},
		{l.stdlib, &b.Stdlib},
	} {
		g.Go(func() error {
			data, origin, err := l.fetch(gctx, item.res, remoteFirst)
			if err != nil {
				return err
			}
			*item.dst = data
			originsMu.Lock()
			b.Origins[item.res.Name] = origin
			originsMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("load interpreter: timed out after %v: %w", l.cfg.timeout, err)
		}
		return nil, fmt.Errorf("load interpreter: %w", err)
	}

	if l.cfg.validate != nil {
		if err := l.cfg.validate(ctx, b); err != nil {
			return nil, fmt.Errorf("validate interpreter: %w", err)
		}
	}

	l.cfg.logger.Info("interpreter loaded",
		"core", b.Origins[l.core.Name],
		"stdlib", b.Origins[l.stdlib.Name],
		"duration", time.Since(start))
	return b, nil
}

// Ready reports whether a validated bundle is loaded.
func (l *Loader) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bundle != nil
}

// Err returns the error of the last failed attempt, or nil.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Bundle returns the loaded bundle without triggering a load.
func (l *Loader) Bundle() (*Bundle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.bundle == nil {
		return nil, ErrNotReady
	}
	return l.bundle, nil
}

// Invalidate drops the loaded bundle. The next load prefers the CDN so a
// damaged local copy gets replaced.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.bundle = nil
	l.err = nil
	l.refresh = true
	l.mu.Unlock()
}

// Warm starts a background load and schedules one re-attempt if the loader
// is still not ready after the recheck delay. The returned channel is closed
// once the re-check has run.
func (l *Loader) Warm(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		if _, err := l.Load(ctx); err != nil {
			l.cfg.logger.Warn("interpreter load failed", "error", err)
		}
	}()
	time.AfterFunc(l.cfg.recheck, func() {
		defer close(done)
		if l.Ready() || ctx.Err() != nil {
			return
		}
		l.cfg.logger.Info("interpreter still not ready, retrying")
		if _, err := l.Load(ctx); err != nil {
			l.cfg.logger.Warn("interpreter reload failed", "error", err)
		}
	})
	return done
}
