package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/codearena/loader"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the Python interpreter and standard library",
	Long: `Download the interpreter WASM binary and its standard-library archive from
their release URLs into the configured local paths, replacing existing
copies. Later runs load the local copies and skip the network.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

var fetchCacheClearCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Remove the compilation cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Interpreter.CacheDir
		if dir == "" {
			return fmt.Errorf("no cache_dir configured")
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
		return nil
	},
}

func init() {
	fetchCmd.AddCommand(fetchCacheClearCmd)
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	core, stdlib := resources(cfg.Interpreter)
	l := loader.New(core, stdlib,
		loader.WithTimeout(cfg.Interpreter.LoadTimeout.Std()),
		loader.WithLogger(logger),
	)
	if err := l.Fetch(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Done.")
	return nil
}
