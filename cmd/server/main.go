package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"tokengallery/internal/cache"
	"tokengallery/internal/config"
	"tokengallery/internal/handlers"
	"tokengallery/internal/metrics"
	"tokengallery/internal/orchestrator"
	"tokengallery/internal/provider"
)

var (
	logger    = logrus.New()
	version   = "1.0.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func init() {
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}
}

func main() {
	logger.WithFields(logrus.Fields{
		"version":   version,
		"buildTime": buildTime,
		"gitCommit": gitCommit,
	}).Info("Starting Token Gallery API")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogging(cfg.Logging)

	// Initialize metrics
	metricsCollector := metrics.NewCollector()

	// Initialize cache store
	store, cleanup, err := buildCacheStore(cfg.Cache)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize cache store")
	}
	defer cleanup()

	// Initialize providers
	tzkt := provider.NewTzKTProvider(providerConfig(cfg.Providers.TzKT), logger)
	bridge := provider.NewObjktBridge(providerConfig(cfg.Providers.Objkt), tzkt, logger)

	// Initialize orchestrator
	orch := orchestrator.New(orchestrator.Options{
		Providers:       []provider.Provider{tzkt, bridge},
		Bridge:          bridge,
		Store:           store,
		DefaultFilters:  &cfg.Orchestrator.DefaultFilters,
		EnableFallback:  cfg.Orchestrator.EnableFallback,
		DefaultPageSize: cfg.Orchestrator.DefaultPageSize,
		HealthInterval:  cfg.Orchestrator.HealthInterval,
		Logger:          logger,
		Metrics:         metricsCollector,
	})

	// Create HTTP router
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := handlers.NewHandler(orch, logger)
	handler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Token Gallery API...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}

	logger.Info("Token Gallery API stopped")
}

func configureLogging(cfg config.LoggingConfig) {
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
}

func buildCacheStore(cfg config.CacheConfig) (cache.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		store := cache.NewRedisStore(client, cfg.Redis.TTL)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return nil, nil, err
		}

		logger.WithField("addr", client.Options().Addr).Info("Using redis cache backend")
		return store, func() { client.Close() }, nil
	case "memory", "":
		logger.Info("Using in-memory cache backend")
		return cache.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func providerConfig(cfg config.ProviderConfig) provider.Config {
	return provider.Config{
		BaseURL:           cfg.BaseURL,
		Priority:          cfg.Priority,
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		Backoff:           provider.BackoffStrategy(cfg.Backoff),
		RequestsPerSecond: cfg.RequestsPerSecond,
		BurstSize:         cfg.BurstSize,
	}
}
