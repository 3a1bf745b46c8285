// Package hostfunc provides the Go functions that sandboxed programs call
// through the stderr/stdin host-call protocol.
//
// A [Registry] maps names to [Func] values. The executor clones a base
// registry for every run and registers the per-run hooks on the clone:
//
//	registry := base.Clone()
//	registry.Register("input", hostfunc.NewInputQueue(stdin).Input)
//	registry.Register("eval", hostfunc.Eval)
//
// Functions return JSON-encodable values. Returning an [*Error] makes the
// guest raise the named Python exception type instead of RuntimeError.
package hostfunc
