package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// WeatherFetcher retrieves the current payload for a city from the upstream API.
type WeatherFetcher interface {
	Fetch(ctx context.Context, city string) (models.WeatherRecord, error)
}

// CacheStore holds recent payloads per city.
type CacheStore interface {
	Get(ctx context.Context, city string) (models.WeatherRecord, bool, error)
	Put(ctx context.Context, city string, record models.WeatherRecord) error
}

// ObjectSaver archives a payload and returns where it was stored.
type ObjectSaver interface {
	Save(ctx context.Context, city string, record models.WeatherRecord) (string, error)
}

// EventLogger records that a payload was fetched and archived.
type EventLogger interface {
	LogEvent(ctx context.Context, city, timestamp, objectURL string) error
}

// WeatherService orchestrates a lookup: cache first, then upstream fetch
// followed by archive, audit log and cache write, in that order.
type WeatherService struct {
	fetcher WeatherFetcher
	cache   CacheStore
	objects ObjectSaver
	events  EventLogger
	logger  *zap.Logger
	now     func() time.Time
}

// NewWeatherService creates a new WeatherService with the provided dependencies.
func NewWeatherService(fetcher WeatherFetcher, cache CacheStore, objects ObjectSaver, events EventLogger, logger *zap.Logger) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		fetcher: fetcher,
		cache:   cache,
		objects: objects,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// GetWeather returns the weather for city. A fresh cache entry is returned with
// no side effects. Otherwise the payload is fetched, archived, logged and cached;
// the first failing step aborts the rest and earlier writes are not undone.
// Errors keep the apperrors kind of the step that failed.
func (s *WeatherService) GetWeather(ctx context.Context, city string) (models.WeatherRecord, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, s.logger).With(zap.String("city", city))

	cached, ok, err := s.cache.Get(ctx, city)
	if err != nil {
		logger.Warn("cache read failed, treating as miss", zap.Error(err))
	} else if ok {
		logger.Debug("weather served", zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}

	logger.Debug("cache miss, fetching upstream")
	record, err := s.fetcher.Fetch(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("fetch weather for %s: %w", city, err)
	}

	url, err := s.objects.Save(ctx, city, record)
	if err != nil {
		return nil, fmt.Errorf("archive weather for %s: %w", city, err)
	}

	if err := s.events.LogEvent(ctx, city, models.FormatTimestamp(s.now()), url); err != nil {
		return nil, fmt.Errorf("log weather event for %s: %w", city, err)
	}

	if err := s.cache.Put(ctx, city, record); err != nil {
		return nil, fmt.Errorf("cache weather for %s: %w", city, err)
	}

	logger.Debug("weather served", zap.Bool("cached", false), zap.String("url", url), zap.Duration("duration", time.Since(start)))
	return record, nil
}
