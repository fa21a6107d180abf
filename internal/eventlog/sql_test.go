package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
)

func setupSQLLogger(t *testing.T) *SQLLogger {
	t.Helper()
	db, err := OpenSQL(BackendSQLite, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)

	l, err := NewSQL(db, BackendSQLite, "weather_log", testPolicy, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSQLLogger_LogEvent(t *testing.T) {
	l := setupSQLLogger(t)
	ctx := context.Background()

	require.NoError(t, l.LogEvent(ctx, "Paris", "2025-06-01T12:00:00Z", "https://b/Paris_1.json"))
	require.NoError(t, l.LogEvent(ctx, "Paris", "2025-06-01T12:05:00Z", "https://b/Paris_2.json"))

	var rows []EventRecord
	require.NoError(t, l.db.Table("weather_log").Order("timestamp").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, EventRecord{City: "Paris", Timestamp: "2025-06-01T12:00:00Z", S3URL: "https://b/Paris_1.json"}, rows[0])
	assert.Equal(t, "https://b/Paris_2.json", rows[1].S3URL)
}

func TestSQLLogger_LogEvent_SameKeyReplaces(t *testing.T) {
	l := setupSQLLogger(t)
	ctx := context.Background()

	require.NoError(t, l.LogEvent(ctx, "Rome", "2025-06-01T12:00:00Z", "first"))
	require.NoError(t, l.LogEvent(ctx, "Rome", "2025-06-01T12:00:00Z", "second"))

	var rows []EventRecord
	require.NoError(t, l.db.Table("weather_log").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0].S3URL)
}

func TestSQLLogger_LogEvent_ClosedDB(t *testing.T) {
	l := setupSQLLogger(t)
	require.NoError(t, l.Close())

	err := l.LogEvent(context.Background(), "Rome", "t", "u")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPermanent, apperrors.KindOf(err))
}

func TestOpenSQL_UnsupportedBackend(t *testing.T) {
	_, err := OpenSQL("mysql", "dsn")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))
}

func TestNewSQL_RequiresTable(t *testing.T) {
	db, err := OpenSQL(BackendSQLite, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)

	_, err = NewSQL(db, BackendSQLite, "", testPolicy, nil)
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))
}
