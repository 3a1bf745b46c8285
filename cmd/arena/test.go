package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/codearena/internal/question"
	"github.com/caffeineduck/codearena/judge"
)

var testCmd = &cobra.Command{
	Use:   "test <question.toml> [file]",
	Short: "Judge a solution against a question's test cases",
	Long: `Run a solution against the sample cases of a question file and report
each case. With --hidden the hidden cases are judged too, the same way a
submission is judged, but nothing is recorded.

The solution is read from the file argument, -c or stdin.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runTest,
}

func init() {
	testCmd.Flags().StringP("code", "c", "", "Code to judge")
	testCmd.Flags().Bool("hidden", false, "Also judge hidden cases")
	testCmd.Flags().Bool("fail-fast", false, "Stop hidden cases at the first failure")
	rootCmd.AddCommand(testCmd)
}

var (
	passMark = color.New(color.FgGreen, color.Bold).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
)

// printer writes one line per finished case.
type printer struct {
	w     io.Writer
	label string
}

func (p printer) ReachCase(index, total int) {}

func (p printer) FinishCase(index int, res judge.CaseResult) {
	if res.Passed {
		fmt.Fprintf(p.w, "%s %s %d\n", passMark("PASS"), p.label, index+1)
		return
	}
	fmt.Fprintf(p.w, "%s %s %d\n", failMark("FAIL"), p.label, index+1)
	if p.label == "sample" {
		fmt.Fprintf(p.w, "  input:    %s\n  expected: %s\n  actual:   %s\n",
			oneLine(res.Input), oneLine(res.Expected), oneLine(res.Actual))
	}
}

func oneLine(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", `\n`)
}

func runTest(cmd *cobra.Command, args []string) error {
	q, err := question.Load(args[0])
	if err != nil {
		return err
	}
	source, err := readSource(cmd, args[1:])
	if err != nil {
		return err
	}
	if source == "" {
		return fmt.Errorf("no solution given")
	}

	ctx := cmd.Context()
	exec, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer exec.Close(ctx)

	out := cmd.OutOrStdout()
	j := judge.New(exec, judge.WithLogger(logger), judge.WithObserver(printer{w: out, label: "sample"}))
	rep, err := j.RunVisible(ctx, source, q.VisibleCases())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "samples: %d/%d passed in %s\n", rep.Passed, rep.Total, rep.Duration.Round(time.Millisecond))
	ok := rep.AllPassed()

	if hidden, _ := cmd.Flags().GetBool("hidden"); hidden {
		opts := []judge.Option{judge.WithLogger(logger), judge.WithObserver(printer{w: out, label: "hidden"})}
		if ff, _ := cmd.Flags().GetBool("fail-fast"); ff {
			opts = append(opts, judge.WithFailFast())
		}
		v, err := judge.New(exec, opts...).RunHidden(ctx, source, q.HiddenCases())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "hidden: all passed: %v\n", v.AllPassed)
		ok = ok && v.AllPassed
	}

	if !ok {
		return errProgramFailed
	}
	return nil
}
