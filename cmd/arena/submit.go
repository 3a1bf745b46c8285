package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/codearena/internal/question"
	"github.com/caffeineduck/codearena/judge"
)

var submitCmd = &cobra.Command{
	Use:   "submit <question-id> [file]",
	Short: "Judge a solution on hidden cases and record it",
	Long: `Fetch a question from the contest API, judge the solution against its
hidden cases and post the submission. The verdict is printed even when
posting fails.

With --questions the question is read from a local directory instead.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringP("code", "c", "", "Code to submit")
	submitCmd.Flags().String("questions", "", "Directory of question TOML files")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args[1:])
	if err != nil {
		return err
	}
	if source == "" {
		return fmt.Errorf("no solution given")
	}

	client, err := newContestClient(cfg.API, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var q question.Question
	if dir, _ := cmd.Flags().GetString("questions"); dir != "" {
		q, err = question.Dir(dir).Question(ctx, args[0])
	} else {
		q, err = client.Question(ctx, args[0])
	}
	if err != nil {
		return err
	}

	exec, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer exec.Close(ctx)

	out := cmd.OutOrStdout()
	j := judge.New(exec, judge.WithLogger(logger), judge.WithObserver(printer{w: out, label: "hidden"}))
	v, err := j.Submit(ctx, client, q.Number, source, q.HiddenCases())
	if v.AllPassed {
		fmt.Fprintf(out, "question %d: %s\n", q.Number, passMark("ACCEPTED"))
	} else {
		fmt.Fprintf(out, "question %d: %s\n", q.Number, failMark("REJECTED"))
	}
	return err
}
