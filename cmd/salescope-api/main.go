package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salescope/salescope/internal/api"
	"github.com/salescope/salescope/internal/config"
	"github.com/salescope/salescope/internal/diagnose"
	"github.com/salescope/salescope/internal/embedding"
	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/pipeline"
	"github.com/salescope/salescope/internal/plan"
	"github.com/salescope/salescope/internal/resolve"
	"github.com/salescope/salescope/internal/retrieval"
	"github.com/salescope/salescope/internal/schema"
	"github.com/salescope/salescope/internal/sqlgen"
	"github.com/salescope/salescope/internal/store"
	s3store "github.com/salescope/salescope/internal/storage/s3"
	"github.com/salescope/salescope/internal/summarize"
	"github.com/salescope/salescope/internal/vocab"
)

func main() {
	cfg, err := config.LoadFromEnv("salescope-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()

	salesStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open sales store", slog.Any("error", err))
		os.Exit(1)
	}

	var embedder embedding.Embedder
	if cfg.Embeddings.Enabled {
		openAI, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL: cfg.Embeddings.BaseURL,
			APIKey:  cfg.Embeddings.APIKey,
			Model:   cfg.Embeddings.Model,
			Timeout: cfg.Embeddings.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize embedder", slog.Any("error", err))
			os.Exit(1)
		}
		embedder = openAI
	}

	profile := schema.Introspect(ctx, salesStore, logger)

	vocabService := vocab.NewService()
	if err := vocabService.Refresh(ctx, salesStore, profile.Groupable, embedder, logger); err != nil {
		logger.Warn("vocabulary refresh failed, resolver starts empty", slog.Any("error", err))
	}

	resolver := resolve.New(vocabService, embedder)
	extractor := plan.NewExtractor(profile, vocabService, resolver, embedder, cfg.Planner.DefaultTopN)
	compiler := sqlgen.NewCompiler(salesStore.Table(), profile, sqlgen.Limits{
		DefaultRowLimit:    cfg.Planner.DefaultRowLimit,
		MaxGroups:          cfg.Planner.MaxGroups,
		DistributionRowCap: cfg.Planner.DistributionRowCap,
	})
	summarizer := summarize.New(cfg.Planner.ContextCharBudget)
	analyzer := diagnose.NewAnalyzer(salesStore, profile)

	docsIndex := buildDocsIndex(ctx, cfg, embedder, logger)

	assistant := pipeline.New(extractor, compiler, salesStore, summarizer, analyzer, docsIndex, logger)

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Assistant:         assistant,
		Readiness:         api.CheckStore(salesStore),
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-runCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config) (*store.SQLStore, error) {
	if cfg.Store.Driver == "postgres" {
		return store.OpenPostgres(ctx, cfg.Store.DSN, cfg.Store.Table, cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns)
	}
	return store.OpenDuckDB(ctx, cfg.Store.DSN, cfg.Store.Table, cfg.Store.SeedGlob, cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns)
}

// buildDocsIndex loads the document corpus from the local docs dir plus,
// when an object store bucket is configured, from S3. Without an embedder
// the document intent is answered with a fixed message, so no index is
// built.
func buildDocsIndex(ctx context.Context, cfg config.Config, embedder embedding.Embedder, logger *slog.Logger) *retrieval.Index {
	if embedder == nil {
		return nil
	}

	docs := retrieval.LoadDir(cfg.Retrieval.DocsDir, logger)
	if cfg.ObjectStore.Endpoint != "" && cfg.ObjectStore.Bucket != "" {
		objectStore, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Warn("object store unavailable, using local docs only", slog.Any("error", err))
		} else {
			docs = append(docs, retrieval.LoadObjects(ctx, objectStore, cfg.Retrieval.ObjectPrefix, logger)...)
		}
	}
	if len(docs) == 0 {
		return nil
	}

	index, err := retrieval.NewIndex(ctx, embedder, docs, retrieval.Options{
		ChunkSize: cfg.Retrieval.ChunkSize,
		TopK:      cfg.Retrieval.TopK,
		MinScore:  cfg.Retrieval.MinScore,
		CacheSize: cfg.Retrieval.CacheSize,
	})
	if err != nil {
		logger.Warn("document index build failed, document questions disabled", slog.Any("error", err))
		return nil
	}
	logger.Info("document index ready", slog.Int("chunks", index.Len()))
	return index
}
