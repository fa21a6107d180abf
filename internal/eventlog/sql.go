package eventlog

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/retry"
)

// EventRecord is the row layout of the SQL event log.
type EventRecord struct {
	City      string `gorm:"column:city;primaryKey;size:255"`
	Timestamp string `gorm:"column:timestamp;primaryKey;size:64"`
	S3URL     string `gorm:"column:s3_url;not null"`
}

func recordFor(e models.LogEntry) EventRecord {
	return EventRecord{City: e.City, Timestamp: e.Timestamp, S3URL: e.ObjectURL}
}

// OpenSQL connects to the event log database. backend is BackendPostgres or
// BackendSQLite; dsn is passed to the driver unchanged.
func OpenSQL(backend, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch backend {
	case BackendPostgres:
		dialector = postgres.Open(dsn)
	case BackendSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, apperrors.Configuration("open event log", fmt.Errorf("unsupported SQL backend %q", backend))
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, apperrors.Configuration("open event log", fmt.Errorf("connect to database: %w", err))
	}
	return db, nil
}

// SQLLogger writes entries to a relational table through gorm.
type SQLLogger struct {
	db      *gorm.DB
	backend string
	table   string
	retry   retry.Policy
	logger  *zap.Logger
}

// NewSQL migrates table and returns a logger that writes to it.
func NewSQL(db *gorm.DB, backend, table string, policy retry.Policy, logger *zap.Logger) (*SQLLogger, error) {
	if table == "" {
		return nil, apperrors.Configuration("new sql event log", fmt.Errorf("table name is required"))
	}
	if err := db.Table(table).AutoMigrate(&EventRecord{}); err != nil {
		return nil, apperrors.Configuration("new sql event log", fmt.Errorf("migrate %s: %w", table, err))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLLogger{db: db, backend: backend, table: table, retry: policy, logger: logger}, nil
}

// LogEvent implements Logger.
func (s *SQLLogger) LogEvent(ctx context.Context, city, timestamp, objectURL string) error {
	logger := observability.LoggerFromContext(ctx, s.logger).With(
		zap.String("city", city),
		zap.String("table", s.table),
	)
	rec := recordFor(models.LogEntry{City: city, Timestamp: timestamp, ObjectURL: objectURL})
	return write(ctx, s.backend, s.retry, logger, func(ctx context.Context) error {
		return s.db.WithContext(ctx).
			Table(s.table).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&rec).Error
	})
}

// Close releases the underlying connection pool.
func (s *SQLLogger) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
