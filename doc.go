// Package codearena is the code execution and judging core of a coding
// contest platform.
//
// # Overview
//
// Contestant programs are Python. They run on a CPython build compiled to
// WASI, one fresh instance per run, with no filesystem or network access.
// input() is answered from the case input through a host call and eval() is
// replaced by a safe arithmetic evaluator on the host.
//
// # Basic Usage
//
//	backend, _ := executor.NewWASM(
//	    loader.Resource{LocalPath: "python.wasm", FallbackURL: coreURL},
//	    loader.Resource{LocalPath: "stdlib.zip", FallbackURL: stdlibURL},
//	)
//	exec := executor.New(python.New(), backend)
//	defer exec.Close(ctx)
//
//	out, err := exec.Run(ctx, "print(int(input()) * 2)", "21") // "42"
//
// A program that raises produces output of the form
//
//	Error: NameError: name 'x' is not defined on line 3
//
// with the line number relative to the contestant's source.
//
// # Judging
//
//	j := judge.New(exec)
//	report, _ := j.RunVisible(ctx, source, question.VisibleCases())
//	verdict, _ := j.Submit(ctx, contestClient, question.Number, source, question.HiddenCases())
//
// # Packages
//
//   - executor: interpreter lifecycle, runs, error reporting and self-healing
//   - loader: fetching the interpreter and stdlib with local and CDN sources
//   - preprocess: source rewriting ahead of the interpreter
//   - hostfunc: host calls made by the guest (input, eval)
//   - judge: visible and hidden test case evaluation and submission
//   - autosave, store: debounced persistence of editor buffers
//   - activity: page visibility tracking
//   - cmd/arena: the CLI and HTTP server
package codearena
