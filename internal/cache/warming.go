package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
)

// WeatherGetter is implemented by the service layer. Used by Warmer to avoid a
// circular dependency on the service package.
type WeatherGetter interface {
	GetWeather(ctx context.Context, city string) (models.WeatherRecord, error)
}

// Warmer keeps the cache fresh for a fixed list of cities by looking them up
// through the service on a schedule.
type Warmer struct {
	getter    WeatherGetter
	logger    *zap.Logger
	timeout   time.Duration
	scheduler *gocron.Scheduler
}

// NewWarmer creates a Warmer that uses the given getter and logger.
func NewWarmer(getter WeatherGetter, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{
		getter:  getter,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// Warm looks up every city concurrently. Returns the joined errors of the
// cities that failed.
func (w *Warmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	w.logger.Info("warming cache", zap.Int("cities", len(cities)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()
			if _, err := w.getter.GetWeather(cctx, city); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", city, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", time.Since(start)))
	return errors.Join(errs...)
}

// Start schedules Warm every interval, beginning immediately. Runs never overlap.
func (w *Warmer) Start(cities []string, interval time.Duration) error {
	if len(cities) == 0 {
		w.logger.Info("cache warmer: no cities configured; nothing to schedule")
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("cache warmer: interval must be positive, got %s", interval)
	}

	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).SingletonMode().Do(func() {
		if err := w.Warm(context.Background(), cities); err != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("cache warmer: schedule: %w", err)
	}
	w.scheduler = s
	s.StartAsync()
	return nil
}

// Stop cancels future warm runs. Safe to call when Start was never called.
func (w *Warmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
