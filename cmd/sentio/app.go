package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/sentio/internal/config"
	"github.com/kalambet/sentio/internal/metrics"
	"github.com/kalambet/sentio/internal/pipeline"
	"github.com/kalambet/sentio/internal/provider"
	"github.com/kalambet/sentio/internal/storage"
	"github.com/kalambet/sentio/internal/vectorindex"
)

// app owns every long-lived component built from the configuration.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.Store
	index    *vectorindex.Client
	pipeline *pipeline.Pipeline
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	completer, embedder, err := buildProvider(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	if cfg.Cache.EmbeddingSize > 0 {
		cached, err := provider.NewCachedEmbedder(embedder, cfg.Cache.EmbeddingSize)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("creating embedding cache: %w", err)
		}
		embedder = cached
	}
	text := provider.NewClient(completer, embedder,
		provider.WithTimeout(cfg.Provider.Timeout),
		provider.WithDimension(cfg.Vector.Dimension),
		provider.WithFailureHook(metrics.ProviderFailed),
	)

	index := openIndex(ctx, cfg, store, logger)

	p, err := pipeline.New(text, index, store, store,
		pipeline.WithLogger(logger),
		pipeline.WithIndexMode(pipeline.IndexMode(cfg.Pipeline.IndexMode)),
		pipeline.WithIndexWorkers(cfg.Pipeline.IndexWorkers),
		pipeline.WithIndexTimeout(cfg.Pipeline.IndexTimeout),
		pipeline.WithTopK(cfg.Search.DefaultTopK, cfg.Search.MaxTopK),
		pipeline.WithProductFallback(cfg.Pipeline.ProductFallback),
	)
	if err != nil {
		index.Close()
		store.Close()
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: store, index: index, pipeline: p}, nil
}

func buildProvider(cfg config.Config) (provider.Completer, provider.Embedder, error) {
	var (
		openaiClient *provider.OpenAI
		ollamaClient *provider.Ollama
	)
	openAI := func() (*provider.OpenAI, error) {
		if openaiClient != nil {
			return openaiClient, nil
		}
		c, err := provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			ChatModel:  cfg.OpenAI.ChatModel,
			EmbedModel: cfg.OpenAI.EmbedModel,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring OpenAI: %w", err)
		}
		openaiClient = c
		return c, nil
	}
	ollama := func() *provider.Ollama {
		if ollamaClient == nil {
			ollamaClient = provider.NewOllama(provider.OllamaConfig{
				BaseURL:    cfg.Ollama.BaseURL,
				ChatModel:  cfg.Ollama.ChatModel,
				EmbedModel: cfg.Ollama.EmbedModel,
			})
		}
		return ollamaClient
	}

	var completer provider.Completer
	switch cfg.Provider.Backend {
	case "openai":
		c, err := openAI()
		if err != nil {
			return nil, nil, err
		}
		completer = c
	case "ollama":
		completer = ollama()
	default:
		completer = provider.Unconfigured{}
	}

	var embedder provider.Embedder
	switch cfg.Provider.Embedder {
	case "openai":
		c, err := openAI()
		if err != nil {
			return nil, nil, err
		}
		embedder = c
	case "ollama":
		embedder = ollama()
	default:
		embedder = provider.NewHashEmbedder(cfg.Vector.Dimension)
	}
	return completer, embedder, nil
}

func openIndex(ctx context.Context, cfg config.Config, store *storage.Store, logger *zap.Logger) *vectorindex.Client {
	opts := vectorindex.Options{
		Collection: cfg.Vector.Collection,
		Dimension:  cfg.Vector.Dimension,
		Logger:     logger.Named("vectorindex"),
		Observer:   metrics.ObserveIndexState,
	}

	var backend vectorindex.Backend
	switch cfg.Vector.Backend {
	case "sqlite":
		backend = vectorindex.NewSQLiteBackend(store.DB())
	case "memory":
		backend = vectorindex.NewMemoryBackend()
	case "pgvector":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pg, err := vectorindex.NewPGVectorBackend(connectCtx, cfg.Vector.PostgresDSN)
		if err != nil {
			logger.Warn("pgvector unreachable, vector index disabled", zap.Error(err))
			return vectorindex.Disabled(opts)
		}
		backend = pg
	default:
		return vectorindex.Disabled(opts)
	}

	provisionCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return vectorindex.Open(provisionCtx, backend, opts)
}

// Close drains in-flight index work before releasing the stores.
func (a *app) Close() error {
	a.pipeline.Close()
	return errors.Join(a.index.Close(), a.store.Close())
}
