package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/libohan-ha/BaiHe-sub001/internal/models"
	"github.com/libohan-ha/BaiHe-sub001/pkg/config"
	"github.com/libohan-ha/BaiHe-sub001/pkg/di"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
	"github.com/libohan-ha/BaiHe-sub001/pkg/router"
	"github.com/libohan-ha/BaiHe-sub001/pkg/secrets"
	"github.com/libohan-ha/BaiHe-sub001/shared/observability"
	"github.com/libohan-ha/BaiHe-sub001/shared/redis"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found")
	}

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		logConfig.Level = level
	}
	logConfig.JSON = os.Getenv("LOG_FORMAT") != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"))

	cfg := config.Get()

	// Initialize database
	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&models.User{}, &models.Persona{}, &models.Message{}); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	// Index backing the recent-history query
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at)").Error; err != nil {
		log.LogError(err, "Failed to create message index", "index", "idx_messages_created_at")
	}

	// Initialize the Redis cache. Without it the message gateway reads
	// straight from the database.
	rdb := redis.NewClient()
	if err := rdb.Ping(context.Background()); err != nil {
		log.Warn("Redis unavailable, caching disabled", "error", err.Error())
		rdb = nil
	}

	// Initialize the secrets manager. Vault when configured, with
	// environment fallback for local development.
	if manager, err := secrets.NewVaultManager(log); err != nil {
		log.Warn("Secrets manager unavailable, using environment only", "error", err.Error())
	} else {
		secrets.SetManager(manager)
	}

	// Observability: tracing and the Prometheus metrics endpoint
	shutdownTracing, err := observability.SetupTracing("chat-hub")
	if err != nil {
		log.Warn("Tracing setup failed", "error", err.Error())
	}
	observability.SetupPrometheusMetrics(cfg.Server.MetricsAddr, log)

	// Initialize dependency injection container
	diConfig := di.DefaultConfig()
	diConfig.LoggerConfig = logConfig
	diConfig.JWTSecret = cfg.JWT.Secret
	diConfig.JWTExpiryHours = int(cfg.JWT.Expiry.Hours())

	container, err := di.New(db, rdb, diConfig)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	// Initialize and setup router
	r := router.New(container)
	r.SetupRoutes()

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r.Engine,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			log.LogError(err, "Tracing shutdown failed")
		}
	}

	log.Info("Server exited gracefully")
}
