package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"barker/internal/agents"
	"barker/internal/chat"
	barkerconfig "barker/internal/config"
	"barker/internal/files"
	"barker/internal/knowledge"
	"barker/internal/schema"
	"barker/internal/scrape"
	"barker/internal/scraper"
	"barker/pkg/auth"
	"barker/pkg/config"
	"barker/pkg/database"
	"barker/pkg/llm"
	"barker/pkg/logging"
	"barker/pkg/monitoring"
	"barker/pkg/server"
)

const (
	version   = "1.0.0"
	gitCommit = "dev"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("barker")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Barker (AI Sales Agent API)")

	cfg := barkerconfig.LoadConfig()

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()

	startupCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := schema.Ensure(startupCtx, db, cfg.EmbeddingDimensions); err != nil {
		logger.WithError(err).Fatal("Failed to ensure database schema")
	}
	if cfg.EmbeddingDimensions > 0 {
		migrated, err := knowledge.EnsureEmbeddingDimensions(startupCtx, db, cfg.EmbeddingDimensions)
		if err != nil {
			logger.WithError(err).Fatal("Failed to verify embedding dimensions")
		}
		if migrated {
			logger.WithField("dimensions", cfg.EmbeddingDimensions).Warn("Embedding dimensions changed; knowledge bases were truncated")
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("barker", version)
	metricsCollector := monitoring.NewMetricsCollector("barker", version, gitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"JWT_SECRET":   cfg.JWTSecret,
	}))

	llmProvider, err := llm.NewProvider(llm.Config{
		Provider:  cfg.LLMProvider,
		Model:     cfg.LLMModel,
		APIKey:    cfg.LLMAPIKey,
		APIURL:    cfg.LLMAPIURL,
		MaxTokens: cfg.LLMMaxTokens,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize LLM provider")
		llmProvider = nil
	}

	embeddingClient, err := llm.NewEmbeddingClient(llm.Config{
		Provider: cfg.EmbeddingProvider,
		Model:    cfg.EmbeddingModel,
		APIKey:   cfg.EmbeddingAPIKey,
		APIURL:   cfg.EmbeddingAPIURL,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize embedding client")
		embeddingClient = nil
	}

	// Setup router with unified monitoring (health/metrics only)
	router := server.SetupServiceRouter(logger, "barker", healthChecker, metricsCollector)

	// The whole API depends on both clients; without them keep the base
	// service (health/metrics) running so misconfiguration is observable.
	if llmProvider == nil || embeddingClient == nil {
		logger.Warn("LLM or embedding client not configured; agent API disabled")
		startServer(cfg, router, logger)
		return
	}

	embedder, err := knowledge.NewEmbedder(embeddingClient,
		knowledge.WithTokenLimit(cfg.ChunkTokenLimit),
		knowledge.WithTokenOverlap(cfg.ChunkTokenOverlap),
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize knowledge embedder")
	}

	knowledgeStore := knowledge.NewStore(db)
	ingestor := knowledge.NewIngestor(knowledgeStore, embedder, db, logger)
	registry := agents.NewRegistry(db)
	conversationStore := chat.NewConversationStore(db)

	orchestrator := chat.NewOrchestrator(
		llmProvider,
		embedder,
		knowledgeStore,
		conversationStore,
		chat.NewCachedConfigs(registry),
		logger,
	)
	orchestrator.HistoryLimit = cfg.MaxHistoryMessages
	orchestrator.TopK = cfg.SearchLimit

	scraperCfg := scraper.LoadConfig()
	analyzer := scraper.NewLLMAnalyzer(llmProvider, scraperCfg)
	siteScraper, err := scraper.New(scraperCfg, analyzer, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize scraper")
	}

	statusStore := scrape.NewStatusStore(db)
	runner := scrape.NewRunner(siteScraper, ingestor, statusStore, scraperCfg.MaxPages, logger)

	apiGroup := router.Group("/api/barker")
	apiGroup.Use(auth.JWTAuthMiddleware([]byte(cfg.JWTSecret)))
	agents.RegisterRoutes(apiGroup, agents.NewHandler(registry, knowledgeStore, ingestor, logger))
	chat.RegisterRoutes(apiGroup, chat.NewHandler(orchestrator, conversationStore, ingestor, logger))
	files.RegisterRoutes(apiGroup, files.NewHandler(db, ingestor, logger))
	scrape.RegisterRoutes(apiGroup, scrape.NewHandler(runner, statusStore, registry, logger))

	startServer(cfg, router, logger)
}

func startServer(cfg barkerconfig.Config, router *gin.Engine, logger logging.Logger) {
	serverConfig := server.DefaultConfig("barker", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
