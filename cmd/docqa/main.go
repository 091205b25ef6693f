// Package main provides the docqa command line for ingesting documents and
// asking questions about them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docqa/internal/app"
	"github.com/bull/docqa/internal/config"
	ghclient "github.com/bull/docqa/internal/github"
	"github.com/bull/docqa/internal/indexer"
	"github.com/bull/docqa/internal/qa"
)

// batchIngester indexes several documents, continuing past failures.
type batchIngester interface {
	IngestAll(ctx context.Context, sources []indexer.Source) (*indexer.Result, error)
}

var (
	configPath string
	verbose    bool

	// Set by setup, or directly by tests.
	application *app.App
	service     *qa.Service
	batch       batchIngester
	fetcher     *ghclient.Fetcher
	logger      = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about your documents",
	Long: `docqa indexes PDF, Markdown and plain text documents and answers
questions using only the content of the document you ask about.

Every ingested document gets its own document id. Questions about one
document never see passages from another.

Environment variables:
  OPENAI_API_KEY  API key for the hosted embeddings and OpenAI generation
  DOCQA_STORE     Vector index backend: qdrant, pgvector or memory
  QDRANT_HOST     Qdrant hostname (default: localhost)
  QDRANT_PORT     Qdrant gRPC port (default: 6334)
  DATABASE_URL    Postgres connection string for the pgvector backend
  GITHUB_TOKEN    GitHub token for higher rate limits (optional)`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stderr")
}

func main() {
	// Load .env file if present (local development), ignore if missing
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error.Render(err.Error()))
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if service != nil {
		return nil
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}

	application = a
	service = a.Service
	batch = a.Pipeline
	fetcher = a.Fetcher
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if application == nil {
		return nil
	}
	err := application.Close()
	application, service, batch, fetcher = nil, nil, nil, nil
	return err
}

// userError logs err in full and returns the message to show the user.
func userError(err error) error {
	logger.Debug("command failed", "error", err)
	return errors.New(qa.UserMessage(err))
}
