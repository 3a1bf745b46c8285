// Package python provides the CPython (WASI) language adapter for codearena.
package python

import (
	_ "embed"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/caffeineduck/codearena/preprocess"
)

//go:embed prelude.py
var prelude string

//go:embed eval_shim.py
var evalShim string

// StdlibDir is where the standard-library archive is mounted in the guest.
const StdlibDir = "/usr/local/lib/python3.12"

// stdlibModules are pure-Python top-level modules shipped in the stdlib
// archive. Modules compiled into the interpreter, such as math, are not
// listed since no archive damage can make them disappear.
var stdlibModules = mapset.NewThreadUnsafeSet(
	"abc", "bisect", "calendar", "collections", "copy", "dataclasses",
	"datetime", "decimal", "encodings", "enum", "fractions", "functools",
	"heapq", "io", "json", "numbers", "operator", "random", "re",
	"statistics", "string", "textwrap", "typing",
)

// Python implements the executor.Language interface for Python execution.
type Python struct{}

// New returns a Python language adapter.
func New() *Python {
	return &Python{}
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Pass returns the preprocessing pass with the arena prelude and eval shim.
func (p *Python) Pass() preprocess.Pass {
	return preprocess.Pass{Prelude: prelude, EvalShim: evalShim}
}

// Args returns the command-line arguments for the Python interpreter.
func (p *Python) Args(code string) []string {
	return []string{"python", "-c", code}
}

// StdlibDir returns the guest directory the stdlib archive is mounted at.
func (p *Python) StdlibDir() string {
	return StdlibDir
}

// Env returns the guest environment.
func (p *Python) Env() map[string]string {
	return map[string]string{
		"PYTHONHOME":              "/usr/local",
		"PYTHONDONTWRITEBYTECODE": "1",
		"PYTHONIOENCODING":        "utf-8",
	}
}

// IsStdlibModule reports whether name (possibly dotted) belongs to the
// standard library archive.
func (p *Python) IsStdlibModule(name string) bool {
	top, _, _ := strings.Cut(name, ".")
	return stdlibModules.Contains(top)
}

// StdlibFiles returns the archive paths that provide the top-level package
// of name: a module file or a package directory.
func (p *Python) StdlibFiles(name string) []string {
	top, _, _ := strings.Cut(name, ".")
	return []string{top + ".py", top + "/__init__.py"}
}
