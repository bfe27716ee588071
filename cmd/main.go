package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/ragdock/auth"
	"github.com/ragdock/config"
	"github.com/ragdock/handlers"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"github.com/ragdock/services/impl"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := initDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	redisClient := initRedis(cfg)

	blobStore, err := impl.NewBlobStore(&cfg.Blob)
	if err != nil {
		log.Fatal("Failed to initialize blob store:", err)
	}

	processingLog, err := impl.NewProcessingLog(db, cfg.Processing.LogFile)
	if err != nil {
		log.Fatal("Failed to open processing log:", err)
	}
	defer processingLog.Close()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize services
	embedOpenAI := impl.NewOpenAIEmbeddingProvider(&cfg.Embedding)
	embedLocal := impl.NewLocalEmbeddingProvider(&cfg.Embedding)
	chatProvider := impl.NewChatProvider(&cfg.Chat)
	chunker := impl.NewChunker()

	registryService := impl.NewRegistryService(db, cfg.RegistryRefreshPeriod())
	accessService := impl.NewAccessService()
	concurrency := impl.NewConcurrencyManager(cfg.Processing.MaxConcurrent)
	recoveryService := impl.NewRecoveryService(db, blobStore, processingLog,
		cfg.StuckThreshold(), time.Duration(cfg.Processing.BlobGracePeriod)*time.Second)

	retrievalService := impl.NewRetrievalService(db, embedOpenAI, embedLocal, redisClient,
		&cfg.Retrieval, time.Duration(cfg.Redis.CacheTTL)*time.Second)

	// Catalog changes invalidate cached retrieval results
	registryService.Subscribe(func() {
		retrievalService.InvalidateCache(context.Background())
	})

	ingestionService := impl.NewIngestionService(db, blobStore, chunker,
		embedOpenAI, embedLocal, chatProvider, processingLog,
		concurrency, recoveryService, registryService,
		&cfg.Processing, &cfg.Embedding, &cfg.Chat)

	chatService := impl.NewChatService(db, registryService, accessService,
		retrievalService, chatProvider, &cfg.Chat)

	registryService.Start(rootCtx)
	recoveryService.Start(rootCtx)

	// Setup router
	jwtValidator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.AllowedIssuers, cfg.Auth.JWKSURL)
	router := setupRouter(cfg, db, jwtValidator, registryService, accessService,
		concurrency, recoveryService, blobStore, ingestionService, chatService,
		embedOpenAI, chatProvider)

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on %s", cfg.GetServerAddress())

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func initDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.MaxLifetime) * time.Second)

	// Chunk tables need the vector extension before AutoMigrate
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Owner{},
		&models.Document{},
		&models.DocumentChunkOpenAI{},
		&models.DocumentChunkLocal{},
		&models.UserDocument{},
		&models.ProcessingLogEntry{},
		&models.Conversation{},
		&models.UserRole{},
		&models.UserOwnerAccess{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	if !cfg.Redis.EnableCache {
		log.Println("Retrieval cache disabled by configuration")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed, retrieval cache falls back to memory: %v", err)
	}

	return client
}

func setupRouter(
	cfg *config.Config,
	db *gorm.DB,
	jwtValidator *auth.JWTValidator,
	registryService services.RegistryService,
	accessService services.AccessService,
	concurrency services.ConcurrencyManager,
	recoveryService services.RecoveryService,
	blobStore services.BlobStore,
	ingestionService services.IngestionService,
	chatService services.ChatService,
	embedProvider services.EmbeddingProvider,
	chatProvider services.ChatProvider,
) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Auth.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	authMW := handlers.NewAuthMiddleware(jwtValidator, db)
	ingestHandlers := handlers.NewIngestHandlers(ingestionService, recoveryService, blobStore, db)
	chatHandlers := handlers.NewChatHandlers(chatService, registryService, accessService)
	systemHandlers := handlers.NewSystemHandlers(registryService, concurrency, db, embedProvider, chatProvider, blobStore)

	router.GET("/health", systemHandlers.Health)
	router.GET("/ready", systemHandlers.Ready)
	router.POST("/refresh-registry", systemHandlers.RefreshRegistry)

	v1 := router.Group("/api/v1")

	// Chat endpoints serve anonymous readers of public documents;
	// identity is attached when a token is present
	public := v1.Group("", authMW.Optional())
	{
		public.POST("/chat", chatHandlers.Chat)
		public.POST("/chat/stream", chatHandlers.ChatStream)
		public.POST("/check-access", chatHandlers.CheckAccess)
	}

	authed := v1.Group("", authMW.Required())
	{
		authed.POST("/process-document", ingestHandlers.ProcessDocument)
		authed.POST("/retrain-document", ingestHandlers.RetrainDocument)
		authed.GET("/processing-status/:id", ingestHandlers.ProcessingStatus)
		authed.GET("/user-documents", ingestHandlers.ListUserDocuments)
		authed.GET("/user-documents/:id/download-url", ingestHandlers.DownloadURL)
		authed.POST("/user-documents/:id/force-retry", ingestHandlers.ForceRetry)
	}

	return router
}
