// Package executor runs contestant programs in a WebAssembly-sandboxed
// interpreter.
//
// # Overview
//
// An [Executor] pairs a [Language] (guest conventions: prelude, argv, env)
// with a [Backend] (the interpreter itself). Every run gets a fresh module
// instance, its own stdout buffer, its own input queue and its own clone of
// the host function registry, so concurrent runs never share hooks.
//
// # Basic Usage
//
//	backend, err := executor.NewWASM(core, stdlib, executor.WithDiskCache())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	exec := executor.New(python.New(), backend)
//	defer exec.Close(ctx)
//
//	if err := exec.Load(ctx); err != nil {
//	    log.Fatal(err) // wraps ErrUnavailable
//	}
//	out, err := exec.Run(ctx, `print(int(input()) * 2)`, "21")
//	fmt.Println(out) // 42
//
// # Errors
//
// Program failures are not Go errors. They come back as output of the form
//
//	Error: ZeroDivisionError: division by zero on line 3
//
// with line numbers in the contestant's numbering. Run returns a non-nil
// error only when the interpreter is unavailable, the executor is closed or
// ctx is done.
//
// # Lifecycle
//
// The interpreter moves through [StateUnloaded], [StateLoading],
// [StateReady] and [StateRunning], or [StateFailed] when loading fails.
// A ModuleNotFoundError for a standard-library module that the mounted
// archive really lacks means the archive is damaged: the executor reloads the
// interpreter and retries the run once. Other runs keep using the current
// interpreter until the reloaded one replaces it.
//
// Standard input is served from the run's input string through host calls,
// so input() and sys.stdin never block. A guest that reads the raw stdin
// anyway is released when the time limit expires.
package executor
