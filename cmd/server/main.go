package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"story-player/internal/clients"
	"story-player/internal/config"
	"story-player/internal/handler"
	"story-player/internal/logger"
	"story-player/internal/metrics"
	"story-player/internal/middleware"
	"story-player/internal/repository"
	"story-player/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
		Service:  "story-player",
		Env:      cfg.Server.Env,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)
	log.Info("Configuration loaded", cfg.LogFields()...)

	// --- Storage ---
	storage, closeStorage, err := setupStorage(cfg, log)
	if err != nil {
		log.Fatal("Failed to set up session storage", zap.Error(err))
	}
	defer closeStorage()

	// --- Dependency Injection ---
	storyAPI, err := clients.NewStoryAPIClient(cfg.StoryAPI.BaseURL, cfg.StoryAPI.Timeout, log)
	if err != nil {
		log.Fatal("Failed to create story API client", zap.Error(err))
	}
	poller := service.NewBranchPoller(storyAPI, cfg.Poller.Interval, cfg.Poller.MaxAttempts, log)
	players := service.NewPlayerManager(storyAPI, poller, storage, cfg.PlayerIdleTTL, log)
	connections := handler.NewConnectionManager(log)
	playerHandler := handler.NewPlayerHandler(players, storyAPI, connections, cfg.Server.CORSAllowedOrigins, log)

	// --- Router ---
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.ZapLoggingMiddlewareForGin(log))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", middleware.TabIDHeader, middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.TabIDHeader, middleware.RequestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// HTTP метрики gin живут на /metrics, метрики плеера в отдельном реестре
	p := ginprometheus.NewPrometheus("gin")
	router.GET("/metrics/player", gin.WrapH(metrics.Handler()))
	playerHandler.RegisterRoutes(router)
	p.Use(router)

	// --- Start HTTP Server ---
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
		// Старт истории может занимать весь таймаут бэкенда
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.StoryAPI.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	connections.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	players.Shutdown()
	log.Info("Server exiting")
}

// setupStorage выбирает хранилище сессий по конфигурации.
func setupStorage(cfg *config.Config, log *zap.Logger) (repository.SessionStorage, func(), error) {
	noop := func() {}
	switch cfg.Storage.Type {
	case config.StorageFile:
		storage, err := repository.NewFileSessionStorage(cfg.Storage.FileDir, log)
		if err != nil {
			return nil, noop, err
		}
		log.Info("Using file session storage", zap.String("dir", cfg.Storage.FileDir))
		return storage, noop, nil
	case config.StorageRedis:
		client, err := setupRedis(cfg, log)
		if err != nil {
			return nil, noop, err
		}
		log.Info("Using redis session storage", zap.String("addr", cfg.Redis.Addr))
		return repository.NewRedisSessionStorage(client, cfg.Storage.SessionTTL, log), func() { _ = client.Close() }, nil
	default:
		log.Info("Using in-memory session storage")
		return repository.NewMemorySessionStorage(), noop, nil
	}
}

// setupRedis подключается к Redis с повторными попытками.
func setupRedis(cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	const (
		maxRetries = 10
		retryDelay = 3 * time.Second
	)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			log.Info("Connected to Redis", zap.Int("attempt", attempt))
			return client, nil
		}
		_ = client.Close()
		lastErr = fmt.Errorf("unable to ping redis (attempt %d/%d): %w", attempt, maxRetries, err)
		log.Warn("Redis ping failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < maxRetries {
			time.Sleep(retryDelay)
		}
	}
	return nil, lastErr
}
