package executor

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/caffeineduck/codearena/language/python"
	"github.com/caffeineduck/codearena/loader"
)

// Environment variables naming local interpreter resources for tests.
const (
	EnvTestCore   = "ARENA_PYTHON_WASM"
	EnvTestStdlib = "ARENA_PYTHON_STDLIB"
)

// ErrNoTestInterpreter is returned by GetTestExecutor when the resource
// environment variables are unset.
var ErrNoTestInterpreter = errors.New(EnvTestCore + " and " + EnvTestStdlib + " must be set")

// TestExecutor provides a shared executor for tests to avoid repeated cold starts.
// Use GetTestExecutor() to get a shared instance that's reused across tests.
var (
	testExecutor     *Executor
	testExecutorOnce sync.Once
	testExecutorErr  error
)

// GetTestExecutor returns a shared, loaded Python executor backed by the
// local resources named in the environment. It never downloads.
func GetTestExecutor() (*Executor, error) {
	testExecutorOnce.Do(func() {
		core, stdlib := os.Getenv(EnvTestCore), os.Getenv(EnvTestStdlib)
		if core == "" || stdlib == "" {
			testExecutorErr = ErrNoTestInterpreter
			return
		}
		backend, err := NewWASM(
			loader.Resource{Name: "core", LocalPath: core},
			loader.Resource{Name: "stdlib", LocalPath: stdlib},
			WithDiskCache(),
			WithLoaderOptions(loader.WithWriteBack(false)),
		)
		if err != nil {
			testExecutorErr = err
			return
		}
		testExecutor = New(python.New(), backend)
		testExecutorErr = testExecutor.Load(context.Background())
	})
	return testExecutor, testExecutorErr
}

// CloseTestExecutor closes the shared test executor.
// Call this in TestMain if needed, but typically not necessary.
func CloseTestExecutor() {
	if testExecutor != nil {
		testExecutor.Close(context.Background())
		testExecutor = nil
		testExecutorOnce = sync.Once{} // Reset for next test run
	}
}
