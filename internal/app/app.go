// Package app assembles the docqa components from configuration. Both
// binaries build on it so the CLI and the MCP server behave identically.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/docqa/internal/answer"
	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/config"
	"github.com/bull/docqa/internal/embedding"
	"github.com/bull/docqa/internal/extract"
	"github.com/bull/docqa/internal/generation"
	ghclient "github.com/bull/docqa/internal/github"
	"github.com/bull/docqa/internal/indexer"
	"github.com/bull/docqa/internal/qa"
	"github.com/bull/docqa/internal/storage"
)

// App holds the wired components. Nothing is contacted until first use:
// the index and the embedding backend open lazily.
type App struct {
	Config   *config.Config
	Service  *qa.Service
	Pipeline *indexer.Pipeline
	Fetcher  *ghclient.Fetcher
	Index    *storage.Lazy
	Logger   *slog.Logger
}

// Build validates cfg and wires every component.
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metric, err := storage.ParseMetric(cfg.Retrieval.Metric)
	if err != nil {
		return nil, err
	}
	opener, err := newOpener(cfg, metric)
	if err != nil {
		return nil, err
	}
	index := storage.NewLazy(opener)

	provider := embedding.NewProvider(embedding.ProviderConfig{
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
	}, func() (embedding.Backend, error) {
		client, err := embedding.NewClient(embedding.ClientConfig{
			APIKey:    cfg.Embedding.APIKey,
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	})

	generator, err := newGenerator(cfg.Generation)
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	pipeline := indexer.NewPipeline(extract.New(cfg.Extraction.MinChars), splitter, provider, index,
		logger.With("component", "indexer"))
	engine := answer.NewEngine(answer.Config{
		Embedder:    provider,
		Index:       index,
		Generator:   generator,
		TopK:        cfg.Retrieval.TopK,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		Logger:      logger.With("component", "answer"),
	})

	gh, err := ghclient.NewClient(cfg.GitHub.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	service := qa.NewService(pipeline, engine, index, qa.Models{
		Embedding:      cfg.Embedding.Model,
		EmbeddingDim:   cfg.Embedding.Dimension,
		Generation:     cfg.Generation.Model,
		GenerationKind: cfg.Generation.Backend,
		TopK:           engine.TopK(),
	})

	logger.Debug("components wired",
		"store", cfg.Store.Backend,
		"metric", metric,
		"embedding_model", cfg.Embedding.Model,
		"generation", cfg.Generation.Backend+"/"+cfg.Generation.Model)

	return &App{
		Config:   cfg,
		Service:  service,
		Pipeline: pipeline,
		Fetcher:  ghclient.NewFetcher(gh),
		Index:    index,
		Logger:   logger,
	}, nil
}

// Close releases the index connection if one was opened.
func (a *App) Close() error {
	return a.Index.Close()
}

func newOpener(cfg *config.Config, metric storage.Metric) (storage.Opener, error) {
	dim := cfg.Embedding.Dimension
	switch cfg.Store.Backend {
	case config.StoreQdrant:
		q := cfg.Store.Qdrant
		return storage.OpenQdrant(storage.QdrantConfig{
			Host:       q.Host,
			Port:       q.Port,
			APIKey:     q.APIKey,
			UseTLS:     q.UseTLS,
			Collection: q.Collection,
			Dimension:  dim,
			Metric:     metric,
		}), nil
	case config.StorePgvector:
		return storage.OpenPgvector(storage.PostgresConfig{
			DSN:       cfg.Store.Postgres.DSN,
			Dimension: dim,
			Metric:    metric,
		}), nil
	case config.StoreMemory:
		return func(ctx context.Context) (storage.Index, error) {
			return storage.NewMemoryStorage(dim, metric), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func newGenerator(cfg config.GenerationConfig) (generation.Generator, error) {
	switch cfg.Backend {
	case config.GeneratorOllama:
		return generation.NewOllama(cfg.BaseURL, 0), nil
	case config.GeneratorOpenAI:
		g, err := generation.NewOpenAI(generation.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("unknown generation backend %q", cfg.Backend)
}
