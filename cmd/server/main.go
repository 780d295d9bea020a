package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoapi "github.com/pilab-dev/glass-analytics/api/echo"
	"github.com/pilab-dev/glass-analytics/cache"
	cacheredis "github.com/pilab-dev/glass-analytics/cache/redis"
	"github.com/pilab-dev/glass-analytics/config"
	"github.com/pilab-dev/glass-analytics/domain"
	"github.com/pilab-dev/glass-analytics/internal/httpx"
	"github.com/pilab-dev/glass-analytics/internal/metrics"
	"github.com/pilab-dev/glass-analytics/internal/server"
	"github.com/pilab-dev/glass-analytics/internal/telemetry"
	"github.com/pilab-dev/glass-analytics/log"
	"github.com/pilab-dev/glass-analytics/mongodb"
	"github.com/pilab-dev/glass-analytics/settings"
	"github.com/pilab-dev/glass-analytics/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		zerolog.New(os.Stdout).With().Timestamp().Logger().Warn().
			Str("configured_log_level", cfg.LogLevel).
			Str("fallback_log_level", logLevel.String()).
			Err(parseErr).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)
	log.InstallGlobal(appLogger)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting glass-analytics server...", map[string]interface{}{
		"http_port":        cfg.HTTPPort,
		"cache_backend":    cfg.CacheBackend,
		"settings_backend": cfg.SettingsBackend,
		"log_level":        cfg.LogLevel,
		"otel_service":     cfg.OtelServiceName,
	})

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err, nil)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(registry)

	meterProvider, err := telemetry.InitMeterProvider(registry)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MeterProvider", err, nil)
	}

	store, err := newCacheStore(ctx, cfg)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize cache store", err, nil)
	}

	initial, err := cfg.InitialSettings()
	if err != nil {
		appLogger.Fatal(ctx, "Invalid initial settings", err, nil)
	}

	repo, mongoClient, err := newSettingsRepository(ctx, cfg, initial)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize settings store", err, nil)
	}

	dashboard, err := settings.NewDashboard(ctx, repo,
		settings.WithStore(store),
		settings.WithLogger(appLogger),
		settings.WithHTTPClient(httpx.NewClient()),
		settings.WithTokenURL(cfg.TokenURI),
		settings.WithBaseURL(cfg.AnalyticsBaseURL),
		settings.WithTimeout(cfg.HTTPTimeout),
	)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to load dashboard settings", err, nil)
	}

	httpServer := server.NewHTTPServer(cfg, appLogger, echoapi.NewDashboardAPI(dashboard), registry)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, fmt.Sprintf("Received signal: %v. Shutting down server...", receivedSignal))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err, nil)
	}

	if err := dashboard.Close(); err != nil {
		appLogger.Error(shutdownCtx, "Dashboard shutdown error", err, nil)
	}
	if err := store.Close(); err != nil {
		appLogger.Error(shutdownCtx, "Cache store shutdown error", err, nil)
	}
	if mongoClient != nil {
		if err := mongoClient.Close(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "Error closing MongoDB connection", err, nil)
		}
	}

	telemetry.Shutdown(shutdownCtx, meterProvider)
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err, nil)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}

func newCacheStore(ctx context.Context, cfg *config.ServerConfig) (cache.Store, error) {
	if cfg.CacheBackend != config.BackendRedis {
		return cache.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	return cacheredis.NewStore(client, cfg.RedisPrefix), nil
}

// newSettingsRepository seeds an empty Mongo store from configuration so the
// first start behaves like the memory backend.
func newSettingsRepository(ctx context.Context, cfg *config.ServerConfig, initial domain.Settings) (domain.SettingsRepository, *mongodb.Client, error) {
	if cfg.SettingsBackend != config.BackendMongo {
		return settings.NewMemoryRepository(initial), nil, nil
	}

	client, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, nil, err
	}

	repo := mongodb.NewSettingsRepository(client.DB())

	current, err := repo.GetSettings(ctx)
	if err != nil {
		_ = client.Close(ctx)
		return nil, nil, err
	}
	if current.Revision == "" && initial.Configured() {
		if err := repo.SaveSettings(ctx, &initial); err != nil {
			_ = client.Close(ctx)
			return nil, nil, err
		}
	}

	return repo, client, nil
}
