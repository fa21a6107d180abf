package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// DefaultTTL is how long a cached lookup stays fresh.
const DefaultTTL = 5 * time.Minute

// Backend stores one serialized entry per key. Implementations do not expire
// entries; freshness is judged by Store from the entry's timestamp.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, data []byte) error
}

// Store is the per-city weather cache. The key is the city name as given.
// Entries are overwritten on Put and never deleted; concurrent writers for the
// same city race and the last write persists.
type Store struct {
	backend Backend
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore returns a Store over backend. A non-positive ttl uses DefaultTTL.
func NewStore(backend Backend, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached record for city if it is younger than the TTL.
// An invalid city name is a miss, not an error. Stale entries are left in place.
// A non-nil error means the backend could not be read.
func (s *Store) Get(ctx context.Context, city string) (models.WeatherRecord, bool, error) {
	logger := observability.LoggerFromContext(ctx, s.logger).With(zap.String("city", city))

	if err := validation.ValidateCity(city); err != nil {
		logger.Warn("invalid city name format, skipping cache")
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	raw, ok, err := s.backend.Read(ctx, city)
	if err != nil {
		observability.CacheLookupsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("cache read %q: %w", city, err)
	}
	if !ok {
		logger.Debug("no cache entry")
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		logger.Warn("unreadable cache entry", zap.Error(err))
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if entry.Timestamp == "" {
		logger.Warn("cache entry has no timestamp")
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	ts, err := models.ParseTimestamp(entry.Timestamp)
	if err != nil {
		logger.Warn("cache entry has invalid timestamp", zap.String("timestamp", entry.Timestamp))
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	if s.now().Sub(ts) < s.ttl {
		logger.Debug("cache entry is fresh")
		observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return entry.Weather, true, nil
	}
	logger.Debug("cache entry expired", zap.String("timestamp", entry.Timestamp))
	observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
	return nil, false, nil
}

// Put overwrites the entry for city with record stamped at the current time.
// Unlike Get, an invalid city name is returned as an error.
func (s *Store) Put(ctx context.Context, city string, record models.WeatherRecord) error {
	if err := validation.ValidateCity(city); err != nil {
		return err
	}

	raw, err := json.Marshal(models.CacheEntry{
		Timestamp: models.FormatTimestamp(s.now()),
		Weather:   record,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	err = s.backend.Write(ctx, city, raw)
	observability.CacheWritesTotal.WithLabelValues(observability.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("cache write %q: %w", city, err)
	}
	observability.LoggerFromContext(ctx, s.logger).Debug("weather cached", zap.String("city", city))
	return nil
}
