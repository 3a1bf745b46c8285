// Package bench measures the run and judge paths against native Python.
//
// Interpreter benchmarks need ARENA_PYTHON_WASM and ARENA_PYTHON_STDLIB.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/codearena/executor"
	"github.com/caffeineduck/codearena/judge"
	"github.com/caffeineduck/codearena/language/python"
	"github.com/caffeineduck/codearena/loader"
	"github.com/caffeineduck/codearena/preprocess/evalexpr"
)

func interpreter(tb testing.TB) *executor.Executor {
	tb.Helper()
	e, err := executor.GetTestExecutor()
	if errors.Is(err, executor.ErrNoTestInterpreter) {
		tb.Skip(err)
	}
	if err != nil {
		tb.Fatal(err)
	}
	return e
}

// --- Interpreter benchmarks: Cold Start (fresh load each time) ---

func BenchmarkArena_ColdStart(b *testing.B) {
	interpreter(b)
	core := loader.Resource{Name: "core", LocalPath: os.Getenv(executor.EnvTestCore)}
	stdlib := loader.Resource{Name: "stdlib", LocalPath: os.Getenv(executor.EnvTestStdlib)}
	for i := 0; i < b.N; i++ {
		backend, err := executor.NewWASM(core, stdlib, executor.WithLoaderOptions(loader.WithWriteBack(false)))
		if err != nil {
			b.Fatal(err)
		}
		e := executor.New(python.New(), backend)
		e.Run(context.Background(), "x=1", "")
		e.Close(context.Background())
	}
}

// --- Interpreter benchmarks: Warm Start (module already compiled) ---

func BenchmarkArena_WarmStart(b *testing.B) {
	e := interpreter(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Run(context.Background(), "x=1", "")
	}
}

func BenchmarkArena_WarmStart_Input(b *testing.B) {
	e := interpreter(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Run(context.Background(), "a = int(input())\nb = int(input())\nprint(a + b)", "2\n3")
	}
}

func BenchmarkArena_WarmStart_Eval(b *testing.B) {
	e := interpreter(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Run(context.Background(), "print(eval(input()))", "2 ** 64")
	}
}

func BenchmarkArena_Judge10Cases(b *testing.B) {
	e := interpreter(b)
	cases := make([]judge.HiddenTestCase, 10)
	for i := range cases {
		cases[i] = judge.HiddenTestCase{Input: strconv.Itoa(i), ExpectedOutput: strconv.Itoa(i * 2)}
	}
	j := judge.New(e)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j.RunHidden(context.Background(), "print(int(input()) * 2)", cases)
	}
}

// --- Host-side benchmarks ---

func BenchmarkPreprocess(b *testing.B) {
	pass := python.New().Pass()
	src := strings.Repeat("n = int(input('n? '))\nprint(eval(str(n) + ' * 2'))\n", 50)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pass.Apply(src)
	}
}

func BenchmarkEvalExpr(b *testing.B) {
	for i := 0; i < b.N; i++ {
		evalexpr.Eval("2 ** 64")
		evalexpr.Eval("[1, -2.5, 'a', 1e3]")
	}
}

// --- Native benchmarks for comparison ---

func BenchmarkNative_Python(b *testing.B) {
	if _, err := osexec.LookPath("python3"); err != nil {
		b.Skip("python3 not installed")
	}
	for i := 0; i < b.N; i++ {
		osexec.Command("python3", "-c", "x=1").Run()
	}
}

// =============================================================================
// COMPARISON TEST - Human readable output
// =============================================================================

func TestComparison(t *testing.T) {
	e := interpreter(t)

	fmt.Println()
	fmt.Printf("Platform: %s/%s, CPUs: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Println()

	measure := func(runs int, fn func()) time.Duration {
		var total time.Duration
		for i := 0; i < runs; i++ {
			start := time.Now()
			fn()
			total += time.Since(start)
		}
		return total / time.Duration(runs)
	}

	const runs = 3
	type row struct {
		name string
		avg  time.Duration
	}
	rows := []row{
		{"arena run print(1)", measure(runs, func() { e.Run(context.Background(), "print(1)", "") })},
		{"arena run with input", measure(runs, func() { e.Run(context.Background(), "print(input())", "x") })},
	}
	if _, err := osexec.LookPath("python3"); err == nil {
		rows = append(rows, row{"native python3", measure(runs, func() {
			osexec.Command("python3", "-c", "print(1)").Run()
		})})
	}

	fmt.Println("┌────────────────────────┬───────────┐")
	fmt.Println("│ Runtime                │ Avg       │")
	fmt.Println("├────────────────────────┼───────────┤")
	for _, r := range rows {
		fmt.Printf("│ %-22s │ %9s │\n", r.name, formatDuration(r.avg))
	}
	fmt.Println("└────────────────────────┴───────────┘")
	fmt.Println()

	t.Log("Benchmark complete - see stdout for results")
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
