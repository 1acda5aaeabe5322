// Package app wires the process: database, memory, capabilities, and the
// research coordinator. Both the server and the CLI build from here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/research-agent/pkg/agents"
	"github.com/mikeboe/research-agent/pkg/chat"
	"github.com/mikeboe/research-agent/pkg/clients"
	"github.com/mikeboe/research-agent/pkg/config"
	"github.com/mikeboe/research-agent/pkg/database"
	"github.com/mikeboe/research-agent/pkg/embeddings"
	"github.com/mikeboe/research-agent/pkg/memory"
	"github.com/mikeboe/research-agent/pkg/research"
	"github.com/mikeboe/research-agent/pkg/resilience"
	"github.com/mikeboe/research-agent/pkg/splitter"
	"github.com/mikeboe/research-agent/pkg/vectorstore"
)

type App struct {
	Cfg         *config.Config
	DB          *database.PostgresDB
	Memory      *memory.Store
	Chat        *chat.Service
	Coordinator *research.Coordinator

	LLM      *agents.ResilientLLM
	FastLLM  *agents.ResilientLLM
	Searcher *agents.ResilientSearcher
	Embedder *embeddings.ResilientEmbedder

	Logger *slog.Logger
}

// Build connects to the database, reloads the durable memory index, and
// wires every capability under the shared resilience policy.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	callerCfg := resilience.CallerConfig{
		FailureThreshold:      cfg.FailureThreshold,
		BreakDuration:         cfg.BreakDuration,
		MaxRetryAttempts:      cfg.MaxRetryAttempts,
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		RequestsPerSecond:     cfg.RequestsPerSecond,
	}
	llmCfg := callerCfg
	llmCfg.Timeout = cfg.Timeout

	googleEmbedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDimension)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init embedder: %w", err)
	}
	embedder := embeddings.NewResilientEmbedder(googleEmbedder, llmCfg, logger)

	chunker := splitter.NewChunker(cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)

	index := memory.NewIndex(cfg.EmbeddingDimension, database.NewMemoryVectorStore(db), logger)
	if err := index.LoadFromStore(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reload memory index: %w", err)
	}
	logger.Info("memory index reloaded", "vectors", index.Count())

	memStore := memory.NewStore(chunker, index, embedder, database.NewMemoryChunkStore(db), logger)

	reasoningModel, err := clients.GoogleAi(ctx, cfg.ReasoningModel, cfg.GoogleApiKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init reasoning model: %w", err)
	}
	llm := agents.NewResilientLLM(reasoningModel, "llm", llmCfg, logger)

	fastModel, err := clients.GoogleAi(ctx, cfg.FastModel, cfg.GoogleApiKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init fast model: %w", err)
	}
	fastLLM := agents.NewResilientLLM(fastModel, "fast-llm", llmCfg, logger)

	searcher := agents.NewResilientSearcher(agents.NewArxivProvider(logger), callerCfg, logger)

	chatSvc := chat.NewService(db)

	corpusFactory := func(ctx context.Context) (*research.SourceCorpus, error) {
		store, err := vectorstore.NewPGVectorStore(db.Pool, research.RunCollectionName())
		if err != nil {
			return nil, err
		}
		if err := store.EnsureTable(ctx, cfg.EmbeddingDimension); err != nil {
			return nil, err
		}
		return research.NewSourceCorpus(store, embedder, chunker, logger), nil
	}

	manager := research.NewManager(
		agents.NewSynthesizer(llm, logger),
		agents.NewReflector(fastLLM, cfg.ConfidenceThreshold, logger),
		searcher,
		memStore,
		chatSvc,
		research.ManagerConfig{
			MaxIterations:   cfg.MaxIterations,
			ResultsPerQuery: cfg.SearchResultsPerQry,
			TopKMemories:    cfg.TopKMemories,
		},
		logger,
	)

	coordinator := research.NewCoordinator(
		agents.NewClarifier(fastLLM, logger),
		agents.NewPlanner(llm, logger),
		searcher,
		agents.NewCompleter(llm, logger),
		manager,
		chatSvc,
		database.NewClarificationStore(db),
		corpusFactory,
		research.CoordinatorConfig{ResultsPerQuery: cfg.SearchResultsPerQry},
		logger,
	)

	return &App{
		Cfg:         cfg,
		DB:          db,
		Memory:      memStore,
		Chat:        chatSvc,
		Coordinator: coordinator,
		LLM:         llm,
		FastLLM:     fastLLM,
		Searcher:    searcher,
		Embedder:    embedder,
		Logger:      logger,
	}, nil
}

func (a *App) Close() {
	a.DB.Close()
}
