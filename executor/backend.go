package executor

import (
	"context"
	"io"
)

// Backend runs the interpreter. The WASM backend is the production
// implementation; tests substitute scripted guests.
type Backend interface {
	// Load prepares the interpreter. It is safe to call repeatedly.
	Load(ctx context.Context) error
	// Exec runs one invocation to completion. A clean exit returns nil.
	Exec(ctx context.Context, inv Invocation) error
	// Reload fetches and validates the interpreter again. Runs keep using the
	// current interpreter until the new one replaces it.
	Reload(ctx context.Context) error
	// HasStdlibFile reports whether the mounted stdlib archive contains the
	// slash-separated path name.
	HasStdlibFile(name string) bool
	// Close releases the backend.
	Close(ctx context.Context) error
}

// Invocation is the per-run execution context. Nothing in it is shared
// between runs.
type Invocation struct {
	Args      []string
	Env       map[string]string
	StdlibDir string
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}
