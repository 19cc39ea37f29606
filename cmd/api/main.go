package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/api/handlers"
	"github.com/knowledgehub/backend/internal/cache/redis"
	"github.com/knowledgehub/backend/internal/chunking"
	"github.com/knowledgehub/backend/internal/embedding"
	"github.com/knowledgehub/backend/internal/health"
	"github.com/knowledgehub/backend/internal/ingestion"
	"github.com/knowledgehub/backend/internal/llm"
	"github.com/knowledgehub/backend/internal/metrics"
	"github.com/knowledgehub/backend/internal/middleware/ratelimit"
	"github.com/knowledgehub/backend/internal/middleware/security"
	"github.com/knowledgehub/backend/internal/middleware/validation"
	"github.com/knowledgehub/backend/internal/query"
	"github.com/knowledgehub/backend/internal/storage/sqlite"
	"github.com/knowledgehub/backend/internal/vector/milvus"
	"github.com/knowledgehub/backend/pkg/config"
	appLogger "github.com/knowledgehub/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting KnowledgeHub API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	milvusClient, err := milvus.NewClient(
		startupCtx,
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(startupCtx); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	var embedder embedding.Provider = embedding.NewOpenAIProvider(
		cfg.LLM.APIKey,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.EmbeddingDim,
		cfg.LLM.BatchSize,
	)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			embedder = embedding.NewCachedProvider(embedder, redisClient, 24*time.Hour)
		}
	}

	llmPool := llm.NewPool(cfg.LLM.APIKey, cfg.LLM.PoolSize)
	generator, err := llmPool.Get(cfg.LLM.Model, llm.Options{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		appLogger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	chunkCfg := chunking.Config{
		ChunkSize:    cfg.Chunking.ChunkSize,
		Overlap:      cfg.Chunking.Overlap,
		MinCoherence: cfg.Chunking.MinCoherence,
	}

	pipeline := ingestion.NewPipeline(sqliteClient, milvusClient, embedder, chunkCfg, cfg.LLM.BatchSize)
	manager := ingestion.NewManager(pipeline, sqliteClient, time.Duration(cfg.RAG.IngestTimeoutSec)*time.Second)

	engine := query.NewEngine(embedder, milvusClient, generator, query.Options{
		DefaultLimit:        cfg.RAG.DefaultLimit,
		DefaultThreshold:    cfg.RAG.DefaultThreshold,
		NoContextConfidence: cfg.RAG.NoContextConfidence,
		UncertaintyMarkers:  cfg.RAG.UncertaintyMarkers,
		CitationMarkers:     cfg.RAG.CitationMarkers,
		Timeout:             time.Duration(cfg.RAG.QueryTimeoutSec) * time.Second,
	})

	checker := health.NewChecker(5 * time.Second)
	checker.Register("milvus", milvusClient)
	checker.Register("embedding", embedder)
	checker.Register("llm", generator)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
	}))

	queryHandler := handlers.NewQueryHandler(engine)
	documentHandler := handlers.NewDocumentHandler(manager, sqliteClient)
	healthHandler := handlers.NewHealthHandler(checker)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)

	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/documents/:id", documentHandler.GetDocument)
	api.Get("/documents/:id/chunks", documentHandler.GetDocumentChunks)
	api.Get("/jobs/:id", documentHandler.GetJobStatus)

	api.Get("/health", healthHandler.HandleHealth)

	// Cached vectors are keyed by model so they never go stale on their own;
	// this is the operator's reset switch for a model migration.
	if redisClient != nil {
		api.Post("/admin/cache/invalidate", func(c *fiber.Ctx) error {
			if err := redisClient.InvalidateEmbeddings(c.Context()); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to invalidate cache",
				})
			}
			return c.JSON(fiber.Map{"status": "invalidated"})
		})
	}

	app.Get("/metrics", metrics.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
