package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"douane-rag/internal/api"
	"douane-rag/internal/api/handlers"
	"douane-rag/internal/repository"
	"douane-rag/internal/service"
	"douane-rag/pkg/config"
	"douane-rag/pkg/embedcache"
	"douane-rag/pkg/logger"
	"douane-rag/pkg/postgres"

	"go.uber.org/zap"
)

// cacheSweepInterval paces the periodic purge of expired cached answers.
const cacheSweepInterval = 6 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting douane-rag service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	tariffRepo := repository.NewTariffRepository(db, appLogger)
	hsCodeRepo := repository.NewHSCodeRepository(db, appLogger)
	noteRepo := repository.NewNoteRepository(db, appLogger)
	controlRepo := repository.NewControlRepository(db, appLogger)
	legalRepo := repository.NewLegalRepository(db, appLogger)
	docRepo := repository.NewDocumentRepository(db, appLogger)
	knowledgeRepo := repository.NewKnowledgeRepository(db, appLogger)
	watchRepo := repository.NewWatchRepository(db, appLogger)
	cacheRepo := repository.NewCacheRepository(db, appLogger)

	// Initialize services
	llmService := service.NewLLMService(&cfg.LLM, appLogger)
	embedCache := embedcache.New(cfg.RAG.EmbedCacheTTL)

	analyzer := service.NewAnalyzerService(cfg.RAG.Country, appLogger)
	resolver := service.NewResolverService(tariffRepo, noteRepo, controlRepo, appLogger)
	retriever := service.NewRetrieverService(llmService, embedCache,
		tariffRepo, hsCodeRepo, legalRepo, docRepo, knowledgeRepo, watchRepo,
		noteRepo, controlRepo, &cfg.RAG, appLogger)
	scorer := service.NewScorerService(&cfg.RAG, appLogger)
	reranker := service.NewRerankerService(llmService, &cfg.RAG, appLogger)
	prompt := service.NewPromptService()
	validator := service.NewValidatorService(legalRepo, docRepo, appLogger)
	cacheService := service.NewCacheService(cacheRepo, llmService, &cfg.Cache, appLogger)

	chatService := service.NewChatService(analyzer, resolver, retriever, scorer,
		reranker, prompt, validator, cacheService, llmService, docRepo,
		&cfg.RAG, appLogger)
	docService := service.NewDocumentService(docRepo, llmService, appLogger)

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(chatService, appLogger)
	docHandler := handlers.NewDocumentHandler(docService, cfg.RAG.Country, appLogger)

	// Setup router
	app := api.SetupRouter(chatHandler, docHandler, &cfg.Server, appLogger)

	// Periodic cache sweep
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cacheSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				cacheService.Sweep(sweepCtx)
			}
		}
	}()

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	stopSweep()
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
