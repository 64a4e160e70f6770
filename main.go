package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/advisor"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/concepts"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/config"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/coordinator"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/database"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/llm"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/pipeline"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/recognizer"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/retry"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/schema"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/validator"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/vector"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file")
		query      = flag.String("query", "", "natural language query to run")
		intent     = flag.String("intent", "", "optional intent hint for entity recognition")
		execute    = flag.Bool("execute", false, "sample-execute the validated statement")
		allowMod   = flag.Bool("allow-modification", false, "permit data-modifying statements")
	)
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: queryhawk-engine -query \"<question>\" [-intent <hint>] [-execute]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath, Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("queryhawk-engine starting",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("vector_store", cfg.VectorStore))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, logger, pipeline.Request{
		Query:             *query,
		IntentHint:        *intent,
		Execute:           *execute,
		AllowModification: *allowMod,
	})
	if err != nil {
		logger.Fatal("engine bootstrap failed", zap.Error(err))
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		logger.Fatal("encode result", zap.Error(err))
	}

	if !result.Success {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, req pipeline.Request) (*models.PipelineResult, error) {
	db, err := database.NewPostgres(ctx, cfg.Database.ConnectionString(), database.PoolConfig{
		MaxConns: cfg.Database.MaxConnections,
		MinConns: cfg.Database.MinConnections,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	llmClient, err := llm.NewClient(&llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	// Embeddings go to their own endpoint; by default that is the LLM
	// endpoint (config.Load fills the fallback in).
	embedder, err := llm.NewClient(&llm.Config{
		Provider: "openai",
		Endpoint: cfg.Embedding.Endpoint,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create embeddings client: %w", err)
	}

	catalog, err := concepts.LoadCatalog(cfg.ConceptCatalogPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load concept catalog: %w", err)
	}

	store, err := newVectorStore(ctx, cfg, db, embedder)
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	if err := catalog.Index(ctx, embedder, cfg.Embedding.Model, store); err != nil {
		return nil, fmt.Errorf("index concept catalog: %w", err)
	}

	cache := schema.NewCache(db, time.Duration(cfg.Pipeline.SchemaTTLMinutes)*time.Minute, logger)
	if _, err := cache.Load(ctx, false); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	matcher, err := concepts.NewMatcher(catalog, embedder, cfg.Embedding.Model,
		store, cfg.Pipeline.MinSimilarity,
		time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("create matcher: %w", err)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.LLM.MaxRetries

	service := llm.NewService(llmClient, cfg.LLM.Temperature,
		time.Duration(cfg.LLM.TimeoutSeconds)*time.Second, logger)
	chain := validator.NewChain(cache, db,
		cfg.Pipeline.ExecutionRowLimit,
		time.Duration(cfg.Pipeline.ExecutionTimeoutSeconds)*time.Second,
		logger)

	p := pipeline.New(
		recognizer.New(cache, logger),
		matcher,
		coordinator.New(service, cache, retryCfg, logger),
		chain,
		advisor.New(cache, logger),
		cfg.Pipeline.MaxEntities,
		cfg.Pipeline.MaxConcepts,
		logger,
	)

	return p.Run(ctx, req), nil
}

// newVectorStore builds the configured concept embedding store. The
// pgvector store needs the embedding dimension up front, so it is probed
// with one short embedding call.
func newVectorStore(ctx context.Context, cfg *config.Config, db *database.Postgres, embedder llm.Client) (vector.Store, error) {
	if cfg.VectorStore != "pgvector" {
		return vector.NewMemoryStore(), nil
	}

	probe, err := embedder.CreateEmbedding(ctx, "dimension probe", cfg.Embedding.Model)
	if err != nil {
		return nil, fmt.Errorf("probe embedding dimension: %w", err)
	}

	return vector.NewPgStore(ctx, db.Pool(), "concept_embeddings", len(probe))
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
