package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/config"
	"github.com/kjstillabower/weather-lookup-service/internal/eventlog"
	httphandler "github.com/kjstillabower/weather-lookup-service/internal/http"
	"github.com/kjstillabower/weather-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-service/internal/objectstore"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/service"
)

func main() {
	cfg, cfgErr := config.Load()

	loggerCfg := observability.LoggerConfig{Level: os.Getenv("LOG_LEVEL")}
	if cfg != nil {
		loggerCfg = observability.LoggerConfig{Level: cfg.LogLevel, File: cfg.LogFile}
	}
	logger, err := observability.NewLogger(loggerCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfgErr != nil {
		logger.Fatal("config", zap.Error(cfgErr), zap.String("kind", string(apperrors.KindOf(cfgErr))))
	}
	logger = logger.With(zap.String("service", cfg.AppName))

	var closers lifecycle.Closers
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(startCtx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal("aws config", zap.Error(apperrors.Configuration("load aws config", err)))
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout, cfg.RetryPolicy(), logger)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cfg.CircuitBreakerEnabled {
		weatherClient.WithCircuitBreaker(client.NewCircuitBreaker("weather_api", logger))
		logger.Info("circuit breaker enabled", zap.String("component", "weather_api"))
	}

	backend, cachePing, err := newCacheBackend(startCtx, cfg, &closers)
	if err != nil {
		logger.Fatal("cache backend", zap.Error(err), zap.String("backend", cfg.CacheBackend))
	}
	logger.Info("cache backend ready", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))
	store := cache.NewStore(backend, cfg.CacheTTL, logger)

	objects, err := objectstore.New(awsCfg, objectstore.Options{
		Bucket:        cfg.S3Bucket,
		StorageDomain: cfg.S3StorageDomain,
		Endpoint:      cfg.S3Endpoint,
		UsePathStyle:  cfg.S3UsePathStyle,
		Retry:         cfg.RetryPolicy(),
	}, logger)
	if err != nil {
		logger.Fatal("object store", zap.Error(err))
	}

	events, err := newEventLogger(cfg, awsCfg, logger, &closers)
	if err != nil {
		logger.Fatal("event log", zap.Error(err), zap.String("backend", cfg.EventLogBackend))
	}
	logger.Info("event log ready", zap.String("backend", cfg.EventLogBackend))

	weatherService := service.NewWeatherService(weatherClient, store, objects, events, logger)

	handler := httphandler.NewHandler(weatherService, weatherClient, &httphandler.HealthConfig{
		ServiceName: cfg.AppName,
		CachePing:   cachePing,
	}, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, logger, httphandler.RouterOptions{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	warmer := cache.NewWarmer(weatherService, logger)
	if cfg.WarmInterval > 0 {
		if err := warmer.Start(cfg.TrackedCities, cfg.WarmInterval); err != nil {
			logger.Warn("cache warmer not started", zap.Error(err))
		}
	} else if len(cfg.TrackedCities) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := warmer.Warm(ctx, cfg.TrackedCities); err != nil {
				logger.Warn("cache warming failed", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	warmer.Stop()
	_ = closers.Close(logger)
	logger.Info("shutdown complete")

	if err := observability.FlushTelemetry(logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// newCacheBackend builds the configured cache backend. The returned ping is nil
// for backends without a remote dependency.
func newCacheBackend(ctx context.Context, cfg *config.Config, closers *lifecycle.Closers) (cache.Backend, func(context.Context) error, error) {
	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemoryBackend(), nil, nil
	case "memcached":
		mc := cache.NewMemcachedBackend(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		closers.Add("memcached", mc.Close)
		return mc, mc.Ping, nil
	case "redis":
		rb, err := cache.NewRedisBackend(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, apperrors.Configuration("connect redis", err)
		}
		closers.Add("redis", rb.Close)
		return rb, rb.Ping, nil
	default:
		fb, err := cache.NewFileBackend(cfg.CacheDir)
		if err != nil {
			return nil, nil, apperrors.Configuration("open cache dir", err)
		}
		return fb, nil, nil
	}
}

// newEventLogger builds the audit log writer. SQL backends reuse the DynamoDB
// table name as their table.
func newEventLogger(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger, closers *lifecycle.Closers) (service.EventLogger, error) {
	switch cfg.EventLogBackend {
	case eventlog.BackendPostgres, eventlog.BackendSQLite:
		db, err := eventlog.OpenSQL(cfg.EventLogBackend, cfg.EventLogDSN)
		if err != nil {
			return nil, err
		}
		sqlLogger, err := eventlog.NewSQL(db, cfg.EventLogBackend, cfg.DynamoDBTable, cfg.RetryPolicy(), logger)
		if err != nil {
			return nil, err
		}
		closers.Add(cfg.EventLogBackend, sqlLogger.Close)
		return sqlLogger, nil
	default:
		ddb, err := eventlog.NewDynamoDB(awsCfg, cfg.DynamoDBTable, cfg.RetryPolicy(), logger)
		if err != nil {
			return nil, err
		}
		return ddb, nil
	}
}
