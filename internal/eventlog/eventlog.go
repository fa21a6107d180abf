// Package eventlog records one audit entry per upstream fetch: the city, when it
// was fetched and where the payload was archived. There is no read path.
package eventlog

import (
	"context"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/retry"
)

// Backend names accepted by configuration.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Logger writes audit entries keyed by (city, timestamp). A second write with the
// same key replaces the first.
type Logger interface {
	LogEvent(ctx context.Context, city, timestamp, objectURL string) error
}

// write runs put under policy and records the outcome for backend.
func write(ctx context.Context, backend string, policy retry.Policy, logger *zap.Logger, put func(ctx context.Context) error) error {
	err := retry.Do(ctx, policy, "log weather event", put, func(attempt int, err error) {
		observability.RetriesTotal.WithLabelValues("event_log").Inc()
		logger.Warn("event log write failed, retrying",
			append(observability.AWSErrorFields(err), zap.Int("retry", attempt), zap.Error(err))...)
	})
	observability.EventLogWritesTotal.WithLabelValues(backend, observability.Outcome(err)).Inc()
	if err != nil {
		logger.Error("event log write failed", append(observability.AWSErrorFields(err), zap.Error(err))...)
		return err
	}
	logger.Debug("weather event logged")
	return nil
}
