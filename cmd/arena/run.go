package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a Python program once",
	Long: `Execute a Python program in the sandbox and print its output.

Code can be provided via:
  - File argument: arena run solution.py
  - Inline flag: arena run -c 'print(1+1)'
  - Stdin: echo 'print(1+1)' | arena run

Program input is given with --input or --input-file and is consumed by
input() one line at a time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

// errProgramFailed makes the process exit non-zero without printing twice.
var errProgramFailed = errors.New("program failed")

func init() {
	runCmd.Flags().StringP("code", "c", "", "Code to execute")
	addInputFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "Program input text")
	cmd.Flags().String("input-file", "", "Read program input from a file")
}

func readInput(cmd *cobra.Command) (string, error) {
	input, _ := cmd.Flags().GetString("input")
	path, _ := cmd.Flags().GetString("input-file")
	if path == "" {
		return input, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readSource takes code from -c, the file argument or piped stdin. It
// returns "" when none is available.
func readSource(cmd *cobra.Command, args []string) (string, error) {
	code, _ := cmd.Flags().GetString("code")
	switch {
	case code != "":
		return code, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	// Check if stdin has data (not a terminal)
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if source == "" {
		return cmd.Help()
	}
	input, err := readInput(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	exec, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer exec.Close(ctx)

	res, err := exec.Execute(ctx, source, input)
	if err != nil {
		return err
	}
	logger.Debug("run finished", "duration", res.Duration, "healed", res.Healed, "truncated", res.Truncated)

	out := cmd.OutOrStdout()
	if res.Failure != nil {
		fmt.Fprintln(out, color.RedString(res.Output))
		return errProgramFailed
	}
	fmt.Fprintln(out, res.Output)
	return nil
}
