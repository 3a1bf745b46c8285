package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/codearena/executor"
	"github.com/caffeineduck/codearena/internal/config"
	"github.com/caffeineduck/codearena/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Sandboxed Python runner and judge for coding contests",
	Long: `arena - Run contestant Python programs in a WebAssembly sandbox and judge
them against question test cases.

Programs run on a Python interpreter compiled to WASI. Each run gets a fresh
instance with no filesystem or network access; input() is served from the
supplied input text and an eval() helper evaluates arithmetic safely.

Settings come from a TOML file, a .env file and ARENA_* environment
variables. Flags override all of them.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errProgramFailed) {
			fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "arena.toml", "Config file (TOML)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text, json")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
	rootCmd.PersistentFlags().String("memory", "", "Memory limit: 64mb, 256mb, 1gb")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-run time limit (default from config, 5s)")
}

// setup loads the configuration, applies flag overrides and installs the
// logger.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("log-level"); v != "" {
		c.Log.Level = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		c.Log.Format = v
	}
	if v, _ := flags.GetBool("no-cache"); v {
		c.Interpreter.DiskCache = false
	}
	if v, _ := flags.GetString("memory"); v != "" {
		mb, err := parseMemoryLimit(v)
		if err != nil {
			return err
		}
		c.Interpreter.MemoryMB = mb
	}
	if v, _ := flags.GetDuration("timeout"); v > 0 {
		c.Interpreter.RunTimeout = config.Duration(v)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logging.Setup(cmd.ErrOrStderr(), c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// parseMemoryLimit returns the limit in MiB.
func parseMemoryLimit(s string) (uint32, error) {
	var pages uint32
	switch strings.ToLower(s) {
	case "64mb":
		pages = executor.MemoryLimit64MB
	case "256mb":
		pages = executor.MemoryLimit256MB
	case "1gb":
		pages = executor.MemoryLimit1GB
	default:
		return 0, fmt.Errorf("invalid memory limit %q (expected 64mb, 256mb or 1gb)", s)
	}
	return pages / pagesPerMiB, nil
}
