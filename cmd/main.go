package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"maintenance-query-agent/internal/ai"
	"maintenance-query-agent/internal/auth"
	"maintenance-query-agent/internal/config"
	"maintenance-query-agent/internal/logger"
	"maintenance-query-agent/internal/store"
	"maintenance-query-agent/internal/telemetry"
	"maintenance-query-agent/internal/vectorindex"
	"maintenance-query-agent/middleware"
	"maintenance-query-agent/routes"
	"maintenance-query-agent/services"
	"maintenance-query-agent/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Open the document store
	st, err := store.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer st.Close()

	// Redis backs sessions and rate limiting. Without it the service still
	// runs, with in-process sessions and no rate limiting.
	var rdb *redis.Client
	var sessions auth.SessionStore
	if client, err := config.NewRedisClient(cfg); err != nil {
		logger.Warn("Redis unavailable, using in-memory sessions and disabling rate limiting", "error", err)
		sessions = auth.NewMemorySessionStore()
	} else {
		rdb = client
		sessions = auth.NewRedisSessionStore(rdb)
		defer rdb.Close()
	}

	// Optional distributed tracing
	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("maintenance-query-agent", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("Failed to initialize tracing", "error", err)
		} else {
			defer shutdown()
		}
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiresIn, sessions)
	if err != nil {
		log.Fatal("Failed to initialize token service:", err)
	}

	if err := seedAdminUser(cfg, st); err != nil {
		log.Fatal("Failed to seed admin user:", err)
	}

	aiClient, err := ai.NewClient(cfg)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer aiClient.Close()

	// Vector index, restored from snapshot or rebuilt from stored chunks
	index, err := vectorindex.New(cfg.VectorDim, cfg.IndexSnapshot)
	if err != nil {
		log.Fatal("Failed to create vector index:", err)
	}
	if err := index.EnsureLoaded(func() ([]vectorindex.Entry, error) {
		vectors, err := st.AllChunkVectors(context.Background())
		if err != nil {
			return nil, err
		}
		entries := make([]vectorindex.Entry, 0, len(vectors))
		for _, v := range vectors {
			entries = append(entries, vectorindex.Entry{ID: v.ID, Vector: v.Embedding})
		}
		return entries, nil
	}); err != nil {
		log.Fatal("Failed to load vector index:", err)
	}
	logger.Info("Vector index ready", "embeddings", index.Size())

	chunker, err := services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Failed to configure chunker:", err)
	}

	pipeline := services.NewPipeline(st, aiClient, index, chunker)
	chat := services.NewChatService(pipeline, aiClient, st)
	export := services.NewExportService(st)

	// Background jobs: periodic index snapshots and history retention
	scheduler := services.NewScheduler()
	if err := scheduler.ScheduleSnapshots(index, cfg.SnapshotPeriod); err != nil {
		log.Fatal("Failed to schedule index snapshots:", err)
	}
	if err := scheduler.ScheduleHistoryRetention(st, cfg.HistoryRetentionDays); err != nil {
		log.Fatal("Failed to schedule history retention:", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())

	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Setup routes
	authMW := middleware.NewAuthMiddleware(tokens)
	routes.SetupPublicRoutes(router, st, index)
	routes.SetupChatRoutes(router, chat)
	routes.SetupAdminRoutes(router, cfg, st, tokens, authMW, pipeline, export)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// Flush the index so a restart does not need a full rebuild.
	if err := index.Snapshot(); err != nil {
		logger.Error("Final index snapshot failed", "error", err)
	}

	logger.Info("Server exited")
}

// seedAdminUser ensures an admin credential exists. When ADMIN_PASS is not
// set a default is used and the account is flagged to force a change on
// first login.
func seedAdminUser(cfg *config.Config, st *store.Store) error {
	password := cfg.AdminPass
	mustChange := false
	if password == "" {
		password = "changeme123"
		mustChange = true
	}

	hash, err := utils.HashPassword(password, cfg.BcryptCost)
	if err != nil {
		return err
	}

	created, err := st.CreateAdminUser(context.Background(), cfg.AdminUser, hash, mustChange)
	if err != nil {
		return err
	}
	if created {
		logger.Info("Seeded admin user", "username", cfg.AdminUser, "must_change_password", mustChange)
		if mustChange {
			logger.Warn("Admin account uses the default password, change it after first login")
		}
	}
	return nil
}
