package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Harshitk-cp/bayesd/internal/api"
	"github.com/Harshitk-cp/bayesd/internal/buildconfig"
	"github.com/Harshitk-cp/bayesd/internal/cache"
	"github.com/Harshitk-cp/bayesd/internal/config"
	"github.com/Harshitk-cp/bayesd/internal/model"
	"github.com/Harshitk-cp/bayesd/internal/store"
	"github.com/Harshitk-cp/bayesd/internal/telemetry"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	deps := api.Deps{
		Metrics: telemetry.New(),
		Library: model.NewLibrary(logger),
	}

	if path := config.ModelCatalogPath(); path != "" {
		n, err := deps.Library.LoadCatalog(path)
		if err != nil {
			logger.Fatal("failed to load model catalog", zap.String("path", path), zap.Error(err))
		}
		logger.Info("model catalog loaded", zap.String("path", path), zap.Int("models", n))
	}

	if dbURL := config.DatabaseURL(); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		if err := store.Migrate(ctx, pool, config.MigrationsPath(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("connected to database")
		deps.DB = pool
	} else {
		logger.Info("DATABASE_URL not set, belief history is kept in memory only")
	}

	if redisURL := config.RedisURL(); redisURL != "" {
		rc, err := cache.NewRedisCache(ctx, redisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = rc.Close() }()
		logger.Info("inference cache enabled", zap.Duration("ttl", config.CacheTTL()))
		deps.Cache = rc
	}

	app := api.NewApp(deps, logger)
	defer app.Close()

	// Start background services
	app.Expirer.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.String("commit", buildconfig.Commit()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	// Stop background services
	app.Expirer.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
