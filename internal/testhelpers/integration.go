//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/eventlog"
	"github.com/kjstillabower/weather-lookup-service/internal/objectstore"
	"github.com/kjstillabower/weather-lookup-service/internal/retry"
	"github.com/kjstillabower/weather-lookup-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "file" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if OPENWEATHERMAP_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("OPENWEATHERMAP_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHERMAP_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultAPIURL
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// RecordingS3 stands in for S3 and keeps every uploaded object in memory.
type RecordingS3 struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

// PutObject implements objectstore.PutObjectAPI.
func (r *RecordingS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	buf, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Objects == nil {
		r.Objects = make(map[string][]byte)
	}
	r.Objects[*in.Key] = buf
	return &s3.PutObjectOutput{}, nil
}

// Count returns the number of stored objects.
func (r *RecordingS3) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Objects)
}

// IntegrationEnv is a service wired to the live weather API with local stand-ins
// for the archive and the audit log.
type IntegrationEnv struct {
	Service *service.WeatherService
	Store   *cache.Store
	Objects *RecordingS3
	Events  *eventlog.SQLLogger
}

// SetupIntegrationService creates a fully configured service for integration tests.
// The audit log is a sqlite database in a temp dir; cleanup is registered on t.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) *IntegrationEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	policy := retry.Policy{Retries: 1, Backoff: time.Second}

	weatherClient := SetupIntegrationClient(t, cfg)

	var backend cache.Backend
	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcachedBackend(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(context.Background()); err == nil {
			backend = mc
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using file cache", err)
		}
	}
	if backend == nil {
		fb, err := cache.NewFileBackend(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileBackend() error = %v", err)
		}
		backend = fb
	}
	store := cache.NewStore(backend, 5*time.Minute, logger)

	recorder := &RecordingS3{}
	objects, err := objectstore.NewWithAPI(recorder, objectstore.Options{Bucket: "integration-bucket", Retry: policy}, logger)
	if err != nil {
		t.Fatalf("objectstore.NewWithAPI() error = %v", err)
	}

	db, err := eventlog.OpenSQL(eventlog.BackendSQLite, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenSQL() error = %v", err)
	}
	events, err := eventlog.NewSQL(db, eventlog.BackendSQLite, "weather_events", policy, logger)
	if err != nil {
		t.Fatalf("NewSQL() error = %v", err)
	}
	t.Cleanup(func() { _ = events.Close() })

	return &IntegrationEnv{
		Service: service.NewWeatherService(weatherClient, store, objects, events, logger),
		Store:   store,
		Objects: recorder,
		Events:  events,
	}
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second, retry.Policy{Retries: 1, Backoff: time.Second}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}
