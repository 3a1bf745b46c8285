package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/codearena/internal/question"
	"github.com/caffeineduck/codearena/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the question page backend",
	Long: `Start an HTTP server that runs and judges contestant code, autosaves
editor buffers and tracks page activity.

Endpoints:
  GET    /health                   Health check
  GET    /runtime                  Interpreter status
  POST   /runtime/retry            Retry a failed interpreter load
  POST   /run                      Run code with input
  POST   /questions/{id}/run       Judge code against sample or custom cases
  POST   /questions/{id}/submit    Judge hidden cases and record the submission
  GET    /questions/{id}/code      Saved code, or the question template
  PUT    /questions/{id}/code      Schedule an autosave
  DELETE /questions/{id}/code      Reset to the template
  POST   /sessions                 Start activity tracking
  GET    /sessions/{id}            Activity state
  POST   /sessions/{id}/events     Report hidden, visible, blur or focus
  DELETE /sessions/{id}            Stop activity tracking

When a JWT secret is configured every endpoint but /health requires an
HS256 bearer token; its subject names the team.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token <team>",
	Short: "Issue a bearer token for a team",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().String("questions", "", "Serve questions from a directory of TOML files")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	serveCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(serveCmd)
}

var errNoSecret = errors.New("server.jwt_secret is not configured")

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v, _ := cmd.Flags().GetString("questions"); v != "" {
		cfg.Server.QuestionsDir = v
	}

	exec, err := newRuntime(cfg.Interpreter, logger)
	if err != nil {
		return err
	}
	defer exec.Close(ctx)
	// Load in the background so /runtime reports progress while the
	// interpreter downloads.
	exec.Warm(ctx)

	st, closeStore, err := newStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, closeSink, err := newSink(cfg.Activity, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	scfg := server.Config{
		Runtime:       exec,
		Store:         st,
		Sink:          sink,
		AutosaveDelay: cfg.Autosave.Delay.Std(),
		ForwardToken:  cfg.Server.ForwardToken,
		SessionTTL:    cfg.Server.SessionTTL.Std(),
		Logger:        logger,
	}
	if cfg.Server.JWTSecret != "" {
		scfg.JWTSecret = []byte(cfg.Server.JWTSecret)
	}

	if cfg.API.BaseURL != "" {
		client, err := newContestClient(cfg.API, logger)
		if err != nil {
			return err
		}
		scfg.Questions = client
		scfg.Submitter = client
	}
	if cfg.Server.QuestionsDir != "" {
		scfg.Questions = question.Dir(cfg.Server.QuestionsDir)
	}

	return server.New(scfg).ListenAndServe(ctx, cfg.Server.Addr)
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.Server.JWTSecret == "" {
		return errNoSecret
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	tok, err := server.SignToken([]byte(cfg.Server.JWTSecret), args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
