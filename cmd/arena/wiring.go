package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go"

	"github.com/caffeineduck/codearena/activity"
	"github.com/caffeineduck/codearena/executor"
	"github.com/caffeineduck/codearena/internal/config"
	"github.com/caffeineduck/codearena/internal/contestapi"
	"github.com/caffeineduck/codearena/language/python"
	"github.com/caffeineduck/codearena/loader"
	"github.com/caffeineduck/codearena/store"
)

// WASM memory pages are 64 KiB.
const pagesPerMiB = 16

func resources(c config.Interpreter) (core, stdlib loader.Resource) {
	core = loader.Resource{Name: "core", LocalPath: c.CorePath, FallbackURL: c.CoreURL}
	stdlib = loader.Resource{Name: "stdlib", LocalPath: c.StdlibPath, FallbackURL: c.StdlibURL}
	return core, stdlib
}

func newBackend(c config.Interpreter, log *slog.Logger) (*executor.WASM, error) {
	core, stdlib := resources(c)
	opts := []executor.WASMOption{
		executor.WithMemoryLimit(c.MemoryMB * pagesPerMiB),
		executor.WithLoaderOptions(
			loader.WithTimeout(c.LoadTimeout.Std()),
			loader.WithLogger(log),
		),
	}
	if c.DiskCache {
		opts = append(opts, executor.WithDiskCache(c.CacheDir))
	}
	return executor.NewWASM(core, stdlib, opts...)
}

// newRuntime builds the Python executor. The interpreter is not loaded yet.
func newRuntime(c config.Interpreter, log *slog.Logger) (*executor.Executor, error) {
	backend, err := newBackend(c, log)
	if err != nil {
		return nil, err
	}
	return executor.New(python.New(), backend,
		executor.WithTimeout(c.RunTimeout.Std()),
		executor.WithMaxOutput(c.MaxOutputKiB*1024),
		executor.WithLogger(log),
	), nil
}

// loadRuntime builds the executor and waits for the interpreter.
func loadRuntime(ctx context.Context) (*executor.Executor, error) {
	exec, err := newRuntime(cfg.Interpreter, logger)
	if err != nil {
		return nil, err
	}
	if err := exec.Load(ctx); err != nil {
		exec.Close(ctx)
		return nil, err
	}
	return exec, nil
}

func newStore(ctx context.Context, c config.Store) (store.Store, func(), error) {
	switch c.Backend {
	case "file":
		s, err := store.NewFile(c.Dir)
		return s, func() {}, err
	case "redis":
		s, err := store.DialRedis(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB, c.TTL.Std())
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

// newSink always logs transitions and also publishes them when NATS is
// configured.
func newSink(c config.Activity, log *slog.Logger) (activity.Sink, func(), error) {
	logSink := activity.LogSink{Logger: log.With("component", "activity")}
	if c.NATSURL == "" {
		return logSink, func() {}, nil
	}
	nc, err := nats.Connect(c.NATSURL, nats.Name("arena"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	subject := c.Subject
	if subject == "" {
		subject = activity.DefaultSubject
	}
	sink := activity.Fanout{logSink, activity.NewNATSSink(nc, subject)}
	return sink, func() { nc.Drain() }, nil
}

func newContestClient(c config.API, log *slog.Logger) (*contestapi.Client, error) {
	if c.BaseURL == "" {
		return nil, errors.New("contest api: base_url is not configured")
	}
	opts := []contestapi.Option{
		contestapi.WithHTTPClient(&http.Client{Timeout: c.Timeout.Std()}),
		contestapi.WithLogger(log),
	}
	if c.Token != "" {
		opts = append(opts, contestapi.WithToken(c.Token))
	}
	return contestapi.New(c.BaseURL, opts...)
}
