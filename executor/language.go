package executor

import "github.com/caffeineduck/codearena/preprocess"

// Language defines the guest-side conventions of an interpreter.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "python").
	Name() string

	// Pass returns the preprocessing pass: the prelude that installs the
	// input hook and error reporting, and the eval shim.
	Pass() preprocess.Pass

	// Args returns the command-line arguments to pass to the WASM module.
	// For Python: []string{"python", "-c", code}
	Args(code string) []string

	// Env returns environment variables for the guest.
	Env() map[string]string

	// StdlibDir is the guest path the standard-library archive is mounted at.
	StdlibDir() string

	// IsStdlibModule reports whether a module that failed to import ships
	// with the standard library archive.
	IsStdlibModule(name string) bool

	// StdlibFiles returns the archive paths, any one of which provides the
	// top-level package of module name.
	StdlibFiles(name string) []string
}
