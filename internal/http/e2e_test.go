package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/eventlog"
	"github.com/kjstillabower/weather-lookup-service/internal/objectstore"
	"github.com/kjstillabower/weather-lookup-service/internal/retry"
	"github.com/kjstillabower/weather-lookup-service/internal/service"
)

type storedObject struct {
	key         string
	contentType string
	body        []byte
}

type fakeS3 struct {
	mu      sync.Mutex
	objects []storedObject
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = append(f.objects, storedObject{aws.ToString(in.Key), aws.ToString(in.ContentType), body})
	return &s3.PutObjectOutput{}, nil
}

type fakeDynamoDB struct {
	mu    sync.Mutex
	items []map[string]types.AttributeValue
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

type e2eStack struct {
	router        http.Handler
	upstreamCalls *int32
	objects       *fakeS3
	events        *fakeDynamoDB
	cacheDir      string
}

func newE2EStack(t *testing.T) *e2eStack {
	t.Helper()
	calls := new(int32)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temp": 290}`))
	}))
	t.Cleanup(upstream.Close)

	logger := zap.NewNop()
	policy := retry.Policy{Retries: 1, Backoff: time.Millisecond}

	weatherClient, err := client.NewOpenWeatherClient("test-api-key-12345", upstream.URL, time.Second, policy, logger)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	cacheDir := filepath.Join(t.TempDir(), "cache")
	backend, err := cache.NewFileBackend(cacheDir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	store := cache.NewStore(backend, cache.DefaultTTL, logger)

	s3api := &fakeS3{}
	objects, err := objectstore.NewWithAPI(s3api, objectstore.Options{Bucket: "weather-bucket", Retry: policy}, logger)
	if err != nil {
		t.Fatalf("objectstore.NewWithAPI() error = %v", err)
	}

	dynamo := &fakeDynamoDB{}
	events, err := eventlog.NewDynamoDBWithAPI(dynamo, "weather_log", policy, logger)
	if err != nil {
		t.Fatalf("eventlog.NewDynamoDBWithAPI() error = %v", err)
	}

	svc := service.NewWeatherService(weatherClient, store, objects, events, logger)
	handler := NewHandler(svc, weatherClient, nil, logger)

	return &e2eStack{
		router:        NewRouter(handler, logger, RouterOptions{}),
		upstreamCalls: calls,
		objects:       s3api,
		events:        dynamo,
		cacheDir:      cacheDir,
	}
}

func (s *e2eStack) get(t *testing.T, url string) map[string]json.RawMessage {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", url, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	return decodeBody(t, w)
}

func compactJSON(t *testing.T, raw []byte) string {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("invalid JSON %s: %v", raw, err)
	}
	out, _ := json.Marshal(v)
	return string(out)
}

// TestEndToEnd_GetWeather_Paris runs a lookup on an empty cache through every
// component and checks each side effect.
func TestEndToEnd_GetWeather_Paris(t *testing.T) {
	stack := newE2EStack(t)

	body := stack.get(t, "/weather?city=Paris")

	if string(body["message"]) != `"Success"` {
		t.Errorf("message = %s, want \"Success\"", body["message"])
	}
	if got := compactJSON(t, body["data"]); got != `{"temp":290}` {
		t.Errorf("data = %s, want {\"temp\":290}", got)
	}

	if len(stack.objects.objects) != 1 {
		t.Fatalf("stored %d objects, want 1", len(stack.objects.objects))
	}
	obj := stack.objects.objects[0]
	if !strings.HasPrefix(obj.key, "Paris_") || !strings.HasSuffix(obj.key, ".json") {
		t.Errorf("object key = %q, want Paris_*.json", obj.key)
	}
	if obj.contentType != "application/json" {
		t.Errorf("content type = %q", obj.contentType)
	}
	if got := compactJSON(t, obj.body); got != `{"temp":290}` {
		t.Errorf("object body = %s", got)
	}

	if len(stack.events.items) != 1 {
		t.Fatalf("logged %d events, want 1", len(stack.events.items))
	}
	item := stack.events.items[0]
	wantURL := "https://weather-bucket.s3.amazonaws.com/" + obj.key
	if url := item["s3_url"].(*types.AttributeValueMemberS).Value; url != wantURL {
		t.Errorf("s3_url = %q, want %q", url, wantURL)
	}
	if city := item["city"].(*types.AttributeValueMemberS).Value; city != "Paris" {
		t.Errorf("city = %q, want Paris", city)
	}

	raw, err := os.ReadFile(filepath.Join(stack.cacheDir, "Paris.json"))
	if err != nil {
		t.Fatalf("cache file missing: %v", err)
	}
	var entry map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("cache file is not JSON: %v", err)
	}
	if len(entry["timestamp"]) == 0 {
		t.Error("cache entry has no timestamp")
	}
	if got := compactJSON(t, entry["weather"]); got != `{"temp":290}` {
		t.Errorf("cached weather = %s", got)
	}
}

// TestEndToEnd_GetWeather_CachedSecondCall verifies two lookups within the TTL
// produce one upstream call and one write to each store.
func TestEndToEnd_GetWeather_CachedSecondCall(t *testing.T) {
	stack := newE2EStack(t)

	first := stack.get(t, "/weather?city=London")
	second := stack.get(t, "/weather?city=London")

	if compactJSON(t, first["data"]) != compactJSON(t, second["data"]) {
		t.Errorf("cached response differs: %s vs %s", first["data"], second["data"])
	}
	if atomic.LoadInt32(stack.upstreamCalls) != 1 {
		t.Errorf("upstream calls = %d, want 1", atomic.LoadInt32(stack.upstreamCalls))
	}
	if len(stack.objects.objects) != 1 || len(stack.events.items) != 1 {
		t.Errorf("objects = %d, events = %d; want 1 each", len(stack.objects.objects), len(stack.events.items))
	}
}

// TestEndToEnd_GetWeather_InvalidCity verifies a rejected name produces the
// generic error and touches nothing external.
func TestEndToEnd_GetWeather_InvalidCity(t *testing.T) {
	stack := newE2EStack(t)

	body := stack.get(t, "/weather?city=123")

	if string(body["error"]) != `"An unexpected error occurred."` {
		t.Errorf("error = %s", body["error"])
	}
	if atomic.LoadInt32(stack.upstreamCalls) != 0 {
		t.Errorf("upstream calls = %d, want 0", atomic.LoadInt32(stack.upstreamCalls))
	}
	if len(stack.objects.objects) != 0 || len(stack.events.items) != 0 {
		t.Errorf("objects = %d, events = %d; want 0", len(stack.objects.objects), len(stack.events.items))
	}
	entries, _ := os.ReadDir(stack.cacheDir)
	if len(entries) != 0 {
		t.Errorf("cache dir has %d entries, want 0", len(entries))
	}
}
