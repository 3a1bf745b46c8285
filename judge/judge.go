// Package judge evaluates a program against visible and hidden test cases.
//
// Cases always run one at a time, in order. A case passes when the program's
// trimmed output equals the trimmed expected output; any "Error: ..." output
// fails the case whatever the expectation.
package judge

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/caffeineduck/codearena/executor"
)

// Status is the outcome of a visible case.
type Status string

const (
	StatusNotRun Status = ""
	StatusPass   Status = "pass"
	StatusFail   Status = "fail"
)

// TestCase is a visible sample case. Run results are written back into it.
type TestCase struct {
	ID             int    `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	ActualOutput   string `json:"actual_output,omitempty"`
	Status         Status `json:"status,omitempty"`
}

// HiddenTestCase is never shown to contestants.
type HiddenTestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// CaseResult is the per-case entry of a hidden run and of the submission.
type CaseResult struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// Runner executes one program with one input. *executor.Executor is a Runner.
type Runner interface {
	Run(ctx context.Context, source, input string) (string, error)
}

// Observer receives progress while cases run.
type Observer interface {
	ReachCase(index, total int)
	FinishCase(index int, res CaseResult)
}

// Report is the result of a visible run.
type Report struct {
	Cases    []TestCase    `json:"cases"`
	Passed   int           `json:"passed"`
	Total    int           `json:"total"`
	Duration time.Duration `json:"duration_ns"`
}

// AllPassed reports whether every case passed.
func (r Report) AllPassed() bool {
	return r.Total > 0 && r.Passed == r.Total
}

// Verdict is the result of a hidden run.
type Verdict struct {
	AllPassed bool         `json:"all_passed"`
	Results   []CaseResult `json:"results"`
	// Total counts all hidden cases, including ones skipped by fail-fast.
	Total    int           `json:"total"`
	Duration time.Duration `json:"duration_ns"`
}

// Tests keys the evaluated results test1..testN.
func (v Verdict) Tests() map[string]CaseResult {
	m := make(map[string]CaseResult, len(v.Results))
	for i, r := range v.Results {
		m["test"+strconv.Itoa(i+1)] = r
	}
	return m
}

// Compare reports whether actual is an accepted answer for expected.
func Compare(actual, expected string) bool {
	if executor.IsError(actual) {
		return false
	}
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}

type Option func(*Judge)

// WithFailFast stops a hidden run at the first failing case.
func WithFailFast() Option {
	return func(j *Judge) { j.failFast = true }
}

func WithObserver(o Observer) Option {
	return func(j *Judge) { j.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(j *Judge) { j.log = l }
}

// Judge runs test cases through a Runner.
type Judge struct {
	runner   Runner
	failFast bool
	observer Observer
	log      *slog.Logger
}

func New(runner Runner, opts ...Option) *Judge {
	j := &Judge{runner: runner, log: slog.Default()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Judge) reach(i, total int) {
	if j.observer != nil {
		j.observer.ReachCase(i, total)
	}
}

func (j *Judge) finish(i int, r CaseResult) {
	if j.observer != nil {
		j.observer.FinishCase(i, r)
	}
}

// run evaluates one case. The error is the runner's, meaning the interpreter
// could not run at all.
func (j *Judge) run(ctx context.Context, source, input, expected string) (CaseResult, error) {
	actual, err := j.runner.Run(ctx, source, input)
	if err != nil {
		return CaseResult{}, err
	}
	return CaseResult{
		Input:    input,
		Expected: expected,
		Actual:   actual,
		Passed:   Compare(actual, expected),
	}, nil
}

// RunVisible runs every case and writes ActualOutput and Status back into
// cases. It stops early only when the interpreter is unavailable, returning
// the report so far.
func (j *Judge) RunVisible(ctx context.Context, source string, cases []TestCase) (Report, error) {
	start := time.Now()
	rep := Report{Cases: cases, Total: len(cases)}

	for i := range cases {
		j.reach(i, len(cases))
		res, err := j.run(ctx, source, cases[i].Input, cases[i].ExpectedOutput)
		if err != nil {
			rep.Duration = time.Since(start)
			return rep, err
		}
		cases[i].ActualOutput = res.Actual
		cases[i].Status = StatusFail
		if res.Passed {
			cases[i].Status = StatusPass
			rep.Passed++
		}
		j.finish(i, res)
	}

	rep.Duration = time.Since(start)
	j.log.Debug("visible run finished", "passed", rep.Passed, "total", rep.Total, "duration", rep.Duration)
	return rep, nil
}

// RunHidden evaluates hidden cases. By default every case runs; with
// WithFailFast the run stops after the first failure.
func (j *Judge) RunHidden(ctx context.Context, source string, cases []HiddenTestCase) (Verdict, error) {
	start := time.Now()
	v := Verdict{AllPassed: true, Total: len(cases)}

	for i, c := range cases {
		j.reach(i, len(cases))
		res, err := j.run(ctx, source, c.Input, c.ExpectedOutput)
		if err != nil {
			v.AllPassed = false
			v.Duration = time.Since(start)
			return v, err
		}
		v.Results = append(v.Results, res)
		j.finish(i, res)
		if !res.Passed {
			v.AllPassed = false
			if j.failFast {
				break
			}
		}
	}

	v.Duration = time.Since(start)
	j.log.Debug("hidden run finished", "all_passed", v.AllPassed, "evaluated", len(v.Results), "total", v.Total)
	return v, nil
}
